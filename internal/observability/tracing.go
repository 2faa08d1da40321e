package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "taubench"

// TracingConfig configures distributed tracing
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	Exporter       string  `yaml:"exporter" mapstructure:"exporter"` // otlp, zipkin
	OTLPEndpoint   string  `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	ZipkinEndpoint string  `yaml:"zipkin_endpoint" mapstructure:"zipkin_endpoint"`
	SampleRate     float64 `yaml:"sample_rate" mapstructure:"sample_rate"` // 0.0 to 1.0
	ServiceName    string  `yaml:"service_name" mapstructure:"service_name"`
	ServiceVersion string  `yaml:"service_version" mapstructure:"service_version"`
}

// TracerProvider wraps OpenTelemetry tracer
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NoopTracerProvider returns a provider whose spans are discarded.
func NoopTracerProvider() *TracerProvider {
	return &TracerProvider{tracer: noop.NewTracerProvider().Tracer(instrumentationName)}
}

// NewTracerProvider creates a new tracer provider
func NewTracerProvider(config TracingConfig) (*TracerProvider, error) {
	if !config.Enabled {
		return NoopTracerProvider(), nil
	}

	if config.ServiceName == "" {
		config.ServiceName = "tau"
	}
	if config.SampleRate <= 0 || config.SampleRate > 1.0 {
		config.SampleRate = 1.0
	}

	var exporter sdktrace.SpanExporter
	var err error

	switch config.Exporter {
	case "otlp", "":
		endpoint := config.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4318"
		}
		exporter, err = otlptracehttp.New(
			context.Background(),
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
	case "zipkin":
		endpoint := config.ZipkinEndpoint
		if endpoint == "" {
			endpoint = "http://localhost:9411/api/v2/spans"
		}
		exporter, err = zipkin.New(endpoint)
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", config.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(config.SampleRate)),
	)
	otel.SetTracerProvider(provider)

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(instrumentationName),
	}, nil
}

// Shutdown flushes pending spans and stops the exporter.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// Tracer returns the tracer
func (tp *TracerProvider) Tracer() trace.Tracer {
	if tp == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return tp.tracer
}

// StartSpan starts a span tagged with the run, task and trial found in ctx.
func (tp *TracerProvider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if runID := RunIDFromContext(ctx); runID != "" {
		attrs = append(attrs, attribute.String(AttrRunID, runID))
	}
	if taskID, trial, ok := TrialFromContext(ctx); ok {
		attrs = append(attrs, attribute.String(AttrTaskID, taskID), attribute.Int(AttrTrial, trial))
	}
	return tp.Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err (if any) and ends span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Span names
const (
	SpanBatchRun    = "tau.batch.run"
	SpanTrial       = "tau.trial"
	SpanEpisodeStep = "tau.episode.step"
	SpanReward      = "tau.reward.calculate"
)

// Attribute keys
const (
	AttrRunID      = "tau.run_id"
	AttrTaskID     = "tau.task_id"
	AttrTrial      = "tau.trial"
	AttrDomain     = "tau.domain"
	AttrActionName = "tau.action"
	AttrReward     = "tau.reward"
	AttrDone       = "tau.done"
)

// ActionAttrs describes one episode step.
func ActionAttrs(name string, done bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrActionName, name),
		attribute.Bool(AttrDone, done),
	}
}

// RewardAttrs describes a finished trial.
func RewardAttrs(reward float64) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.Float64(AttrReward, reward)}
}
