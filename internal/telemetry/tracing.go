package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerConfig configures OpenTelemetry tracing.
type TracerConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	SamplingRate   float64
	Enabled        bool
}

// DefaultTracerConfig returns a default tracer configuration.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		ServiceName:    "workflowcore",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SamplingRate:   1.0,
		Enabled:        false,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracerProvider creates a new OpenTelemetry tracer provider. When
// disabled it returns a no-op tracer so instrumentation call sites never
// need to branch on configuration.
func NewTracerProvider(cfg TracerConfig) (*TracerProvider, error) {
	if !cfg.Enabled {
		return &TracerProvider{tracer: otel.Tracer(cfg.ServiceName)}, nil
	}

	ctx := context.Background()
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		attribute.String("environment", cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return &TracerProvider{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}, nil
}

func (tp *TracerProvider) Tracer() trace.Tracer { return tp.tracer }

func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

func (tp *TracerProvider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tp.tracer.Start(ctx, name, opts...)
}

func SpanFromContext(ctx context.Context) trace.Span { return trace.SpanFromContext(ctx) }

func SetSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

func SetSpanError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// InstrumentStepTransition starts a span for one transition-service pass
// over a step.
func InstrumentStepTransition(ctx context.Context, tracer trace.Tracer, workflowID, stepName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, fmt.Sprintf("transition.%s", stepName),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
			attribute.String("step.name", stepName),
		),
	)
}

// InstrumentAdapterSignal starts a span for one Issue→Workflow Adapter
// completion signal.
func InstrumentAdapterSignal(ctx context.Context, tracer trace.Tracer, externalID, agentType string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "adapter.complete_step_for_issue",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("external.id", externalID),
			attribute.String("agent.type", agentType),
		),
	)
}

// InstrumentAuditWrite starts a span for one buffered audit persistence
// call.
func InstrumentAuditWrite(ctx context.Context, tracer trace.Tracer, workflowID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "audit.persist",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("workflow.id", workflowID)),
	)
}
