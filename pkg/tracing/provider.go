package tracing

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

// ProviderConfig selects the span exporter for the service.
type ProviderConfig struct {
	ServiceName string
	// Exporter is "none", "console" or "otlp".
	Exporter string
	OTLP     exporters.OTLPConfig
	Logger   ectologger.Logger
}

// Init installs a global tracer provider and returns its shutdown func.
func Init(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	if cfg.Exporter == "" || cfg.Exporter == "none" {
		return func(context.Context) error { return nil }, nil
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "console":
		exporter = &exporters.ConsoleExporter{Logger: cfg.Logger}
	case "otlp":
		otlpExporter, err := exporters.NewOTLPExporter(ctx, cfg.OTLP)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}
		exporter = otlpExporter
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s (use 'none', 'console' or 'otlp')", cfg.Exporter)
	}

	res := resource.NewWithAttributes("", attribute.String("service.name", cfg.ServiceName))

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	SetTracer(provider.Tracer(cfg.ServiceName))

	return provider.Shutdown, nil
}
