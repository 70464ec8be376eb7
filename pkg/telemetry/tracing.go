package telemetry

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Options controls tracer-provider construction.
type Options struct {
	ServiceName    string
	ServiceVersion string
	// Endpoint is an OTLP HTTP collector endpoint; empty disables export.
	Endpoint    string
	Insecure    bool
	SampleRatio float64
	// LogSpans mirrors completed spans into the provided logger, useful when
	// no collector is deployed.
	LogSpans bool
	Logger   zerolog.Logger
}

// Setup configures the global OpenTelemetry tracer provider and propagators.
// Callers own shutdown of the returned provider.
func Setup(ctx context.Context, opts Options) (*sdktrace.TracerProvider, error) {
	ratio := opts.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(opts.ServiceVersion),
	)

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(res),
	}

	if opts.Endpoint != "" {
		exporter, err := newOTLPExporter(ctx, opts.Endpoint, opts.Insecure)
		if err != nil {
			return nil, err
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}
	if opts.LogSpans {
		providerOpts = append(providerOpts, sdktrace.WithSyncer(newLoggingExporter(opts.Logger)))
	}

	provider := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return provider, nil
}

func newOTLPExporter(ctx context.Context, endpoint string, insecure bool) (sdktrace.SpanExporter, error) {
	// The OTLP HTTP exporter expects an endpoint without scheme. Strip it,
	// and treat plain http as insecure.
	ep := endpoint
	if strings.HasPrefix(endpoint, "https://") {
		ep = strings.TrimPrefix(endpoint, "https://")
	} else if strings.HasPrefix(endpoint, "http://") {
		ep = strings.TrimPrefix(endpoint, "http://")
		insecure = true
	}
	if ep == "" {
		return nil, errors.New("invalid OTLP endpoint")
	}

	clientOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(ep)}
	if insecure {
		clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, clientOpts...)
}
