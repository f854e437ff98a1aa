package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TraceConfig configures the runtime's tracer provider. Exporter wiring
// (OTLP, stdout, …) is a deployment concern: callers install a
// sdktrace.SpanExporter via WithBatcher-style options on the provider they
// build and pass in, or use NewTracer's no-exporter default for local runs.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Exporter       sdktrace.SpanExporter // optional
}

// Tracer wraps an OpenTelemetry tracer scoped to the runtime's
// instrumentation name. No runtime component creates one: the ReAct loop,
// tool dispatch and provider calls start no spans.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a Tracer. If cfg.Exporter is nil, spans are recorded by
// the SDK but never exported — useful for local runs and tests that only
// assert on span attributes via a custom processor.
func NewTracer(cfg TraceConfig) (*Tracer, func(context.Context) error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "osa"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.Exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(cfg.Exporter))
	}
	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer("github.com/osa/runtime"),
	}, provider.Shutdown
}

// Start begins a span for the given operation name.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError marks the span as errored and attaches err.
func RecordError(span trace.Span, err error) {
	if err == nil || span == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
