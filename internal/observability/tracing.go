package observability

import (
	"context"
	"errors"
	"fmt"

	"wavely/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the global tracer used for the application.
var Tracer trace.Tracer = otel.Tracer("wavely-api")

// Exporters InitTracing accepts.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// TracingConfig holds configuration for initializing the tracer.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool
	Exporter       string
	OTLPEndpoint   string
	SamplerRatio   float64
}

// TracingFromConfig maps the TRACING_* settings onto a TracingConfig.
func TracingFromConfig(cfg *config.Config, service, version string) TracingConfig {
	return TracingConfig{
		ServiceName:    service,
		ServiceVersion: version,
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampleRatio,
	}
}

func newExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterOTLP:
		if cfg.OTLPEndpoint == "" {
			return nil, errors.New("OTLP_ENDPOINT is required for the otlp exporter")
		}
		return otlptracehttp.New(context.Background(),
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
	case ExporterStdout, "":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unknown tracing exporter %q", cfg.Exporter)
	}
}

func newSampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// InitTracing installs the global tracer provider and returns its shutdown
// function. When tracing is disabled spans go to the no-op provider.
func InitTracing(cfg TracingConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		Tracer = otel.Tracer(cfg.ServiceName)
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracing exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SamplerRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	Tracer = tp.Tracer(cfg.ServiceName)

	return func(ctx context.Context) error {
		if err := tp.ForceFlush(ctx); err != nil {
			return err
		}
		return tp.Shutdown(ctx)
	}, nil
}

// Mutation outcomes, shared by spans and the wave_mutations_total metric.
const (
	OutcomeOK        = "ok"
	OutcomeUnchanged = "unchanged"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
	OutcomeConflict  = "conflict"
)

// MutationSpan traces one read-modify-write cycle on a wave document.
type MutationSpan struct {
	span     trace.Span
	kind     string
	attempts int
}

// StartMutation opens the span for a mutation of kind on waveID.
func StartMutation(ctx context.Context, kind string, waveID uint) (context.Context, *MutationSpan) {
	ctx, span := Tracer.Start(ctx, "wave.mutate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("wave.mutation", kind),
			attribute.Int64("wave.id", int64(waveID)),
		),
	)
	return ctx, &MutationSpan{span: span, kind: kind}
}

// Attempt marks the start of a write attempt.
func (m *MutationSpan) Attempt() {
	m.attempts++
}

// Conflict records a lost version race and counts it.
func (m *MutationSpan) Conflict() {
	m.span.AddEvent("version_conflict", trace.WithAttributes(attribute.Int("wave.attempt", m.attempts)))
	VersionConflicts.WithLabelValues(m.kind).Inc()
}

// Finish ends the span with outcome and counts the mutation. err is recorded
// for every outcome except ok and unchanged.
func (m *MutationSpan) Finish(outcome string, err error) {
	m.span.SetAttributes(
		attribute.String("wave.outcome", outcome),
		attribute.Int("wave.attempts", m.attempts),
	)
	if err != nil && outcome != OutcomeOK && outcome != OutcomeUnchanged {
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	}
	WaveMutations.WithLabelValues(m.kind, outcome).Inc()
	m.span.End()
}

// TraceStoreOperation starts a client span for a document store call.
func TraceStoreOperation(ctx context.Context, system, operation, collection string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "store."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation", operation),
			attribute.String("db.collection", collection),
		),
	)
}
