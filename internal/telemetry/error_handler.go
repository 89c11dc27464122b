package telemetry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorContext carries the fields an orchestration error is reported with,
// across logs, metrics, Sentry, and the active span.
type ErrorContext struct {
	WorkflowID string
	StepName   string
	ExternalID string
	AgentType  string
	Operation  string
	ErrorType  string
	Duration   time.Duration
	Tags       map[string]string
	Extra      map[string]interface{}
}

// ErrorHandler centralizes error logging, metrics, Sentry reporting, and
// span annotation so call sites don't repeat the same four steps.
type ErrorHandler struct {
	logger        *Logger
	metrics       *MetricsCollector
	sentryEnabled bool
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger *Logger, metrics *MetricsCollector, sentryEnabled bool) *ErrorHandler {
	return &ErrorHandler{logger: logger, metrics: metrics, sentryEnabled: sentryEnabled}
}

// HandleError logs err with errCtx's fields, records a metric, reports to
// Sentry if enabled, and annotates the active span. A nil err logs success
// at info level instead.
func (eh *ErrorHandler) HandleError(ctx context.Context, err error, errCtx ErrorContext) {
	if err == nil {
		eh.logger.InfoContext(ctx, "operation completed",
			"operation", errCtx.Operation,
			"workflow_id", errCtx.WorkflowID,
			"step_name", errCtx.StepName,
			"duration_ms", errCtx.Duration.Milliseconds(),
		)
		return
	}

	eh.logger.ErrorContext(ctx, "operation failed",
		"error", err.Error(),
		"error_type", errCtx.ErrorType,
		"operation", errCtx.Operation,
		"workflow_id", errCtx.WorkflowID,
		"step_name", errCtx.StepName,
		"external_id", errCtx.ExternalID,
		"agent_type", errCtx.AgentType,
		"duration_ms", errCtx.Duration.Milliseconds(),
	)

	if eh.metrics != nil && errCtx.Operation != "" {
		eh.metrics.RecordAdapterSignal("error")
	}

	if eh.sentryEnabled {
		eh.reportToSentry(err, errCtx)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.String("error.type", errCtx.ErrorType),
			attribute.String("workflow.id", errCtx.WorkflowID),
		)
	}
}

func (eh *ErrorHandler) reportToSentry(err error, errCtx ErrorContext) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("service", "workflowcore")
		scope.SetTag("error_type", errCtx.ErrorType)

		if errCtx.Operation != "" {
			scope.SetTag("operation", errCtx.Operation)
		}
		if errCtx.WorkflowID != "" {
			scope.SetTag("workflow_id", errCtx.WorkflowID)
		}
		if errCtx.StepName != "" {
			scope.SetTag("step_name", errCtx.StepName)
		}
		if errCtx.ExternalID != "" {
			scope.SetTag("external_id", errCtx.ExternalID)
		}
		if errCtx.AgentType != "" {
			scope.SetTag("agent_type", errCtx.AgentType)
		}
		for k, v := range errCtx.Tags {
			scope.SetTag(k, v)
		}
		if errCtx.Duration > 0 {
			scope.SetContext("performance", map[string]interface{}{
				"duration_ms": errCtx.Duration.Milliseconds(),
			})
		}
		if len(errCtx.Extra) > 0 {
			scope.SetContext("extra", errCtx.Extra)
		}

		sentry.CaptureException(err)
	})
}

// GracefulDegradation logs a monitoring-path failure (a metrics push, a
// trace export, an audit flush) without propagating it to the caller — the
// workflow operation that triggered it must still complete.
func (eh *ErrorHandler) GracefulDegradation(ctx context.Context, operation string, err error) {
	eh.logger.WarnContext(ctx, "telemetry operation failed, continuing without it",
		"operation", operation,
		"error", err.Error(),
	)
}

// HealthCheck reports whether the optional telemetry backends are wired up.
type HealthCheck struct {
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Components map[string]interface{} `json:"components"`
}

// CreateHealthCheck reports the health of the telemetry stack itself
// (Sentry, metrics, tracing) — not of the workflows it instruments.
func (eh *ErrorHandler) CreateHealthCheck(ctx context.Context) HealthCheck {
	health := HealthCheck{Status: "healthy", Timestamp: timeNow(), Components: make(map[string]interface{})}

	health.Components["sentry"] = componentStatus(eh.sentryEnabled)
	health.Components["metrics"] = componentStatus(eh.metrics != nil)
	health.Components["tracing"] = componentStatus(trace.SpanFromContext(ctx).IsRecording())

	for _, c := range health.Components {
		if m, ok := c.(map[string]interface{}); ok && m["status"] != "enabled" {
			health.Status = "degraded"
			break
		}
	}
	return health
}

func componentStatus(enabled bool) map[string]interface{} {
	if enabled {
		return map[string]interface{}{"status": "enabled"}
	}
	return map[string]interface{}{"status": "disabled"}
}

// timeNow is a seam so tests can avoid depending on wall-clock time.
var timeNow = time.Now
