// Package telemetry provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, and Sentry error reporting for the workflow
// orchestration core, adapted from the teacher's observability package.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	TraceIDKey    ContextKey = "trace_id"
	WorkflowIDKey ContextKey = "workflow_id"
	ExternalIDKey ContextKey = "external_id"
	AgentTypeKey  ContextKey = "agent_type"
)

// Logger wraps slog.Logger with context-aware methods for the fields the
// engine and adapter thread through calls.
type Logger struct {
	logger *slog.Logger
}

// LoggerConfig configures the structured logger.
type LoggerConfig struct {
	Level         string
	Format        string
	Output        io.Writer
	AddSource     bool
	SentryEnabled bool
}

// DefaultLoggerConfig returns a default logger configuration.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:         "info",
		Format:        "json",
		Output:        os.Stdout,
		AddSource:     true,
		SentryEnabled: false,
	}
}

// sentryHandler is a slog.Handler that forwards warn/error records to
// Sentry in addition to the wrapped handler.
type sentryHandler struct {
	next slog.Handler
}

func (h *sentryHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *sentryHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		sentryCtx := make(map[string]interface{})
		r.Attrs(func(attr slog.Attr) bool {
			sentryCtx[attr.Key] = attr.Value.Any()
			return true
		})

		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetContext("log", sentryCtx)
			scope.SetTag("logger", "slog")
			scope.SetTag("level", r.Level.String())
			sentry.CaptureMessage(r.Message)
		})
	}
	return h.next.Handle(ctx, r)
}

func (h *sentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sentryHandler{next: h.next.WithAttrs(attrs)}
}

func (h *sentryHandler) WithGroup(name string) slog.Handler {
	return &sentryHandler{next: h.next.WithGroup(name)}
}

// NewLogger creates a new structured logger.
func NewLogger(cfg LoggerConfig) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, handlerOpts)
	}

	if cfg.SentryEnabled {
		handler = &sentryHandler{next: handler}
	}

	return &Logger{logger: slog.New(handler)}
}

// WithContext extracts workflow/trace identifiers from ctx and returns a
// logger annotated with them.
func (l *Logger) WithContext(ctx context.Context) *slog.Logger {
	logger := l.logger
	if v, ok := ctx.Value(TraceIDKey).(string); ok && v != "" {
		logger = logger.With("trace_id", v)
	}
	if v, ok := ctx.Value(WorkflowIDKey).(string); ok && v != "" {
		logger = logger.With("workflow_id", v)
	}
	if v, ok := ctx.Value(ExternalIDKey).(string); ok && v != "" {
		logger = logger.With("external_id", v)
	}
	if v, ok := ctx.Value(AgentTypeKey).(string); ok && v != "" {
		logger = logger.With("agent_type", v)
	}
	return logger
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Debug(msg, args...)
}
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Info(msg, args...)
}
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Warn(msg, args...)
}
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Error(msg, args...)
}

// With returns a logger with additional attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// LogStepTransition logs a step moving into a new status.
func (l *Logger) LogStepTransition(ctx context.Context, workflowID string, stepNum int, stepName, status string, duration time.Duration) {
	l.WithContext(ctx).Info("step_transition",
		"workflow_id", workflowID,
		"step_num", stepNum,
		"step_name", stepName,
		"status", status,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogWorkflowLifecycle logs a workflow-level state change.
func (l *Logger) LogWorkflowLifecycle(ctx context.Context, workflowID, state string) {
	l.WithContext(ctx).Info("workflow_lifecycle",
		"workflow_id", workflowID,
		"state", state,
	)
}

// LogAdapterSignal logs an inbound completion signal handled by the
// Issue→Workflow Adapter.
func (l *Logger) LogAdapterSignal(ctx context.Context, externalID, agentType string, accepted bool) {
	l.WithContext(ctx).Info("adapter_signal",
		"external_id", externalID,
		"agent_type", agentType,
		"accepted", accepted,
	)
}

// Underlying returns the underlying slog.Logger.
func (l *Logger) Underlying() *slog.Logger {
	return l.logger
}
