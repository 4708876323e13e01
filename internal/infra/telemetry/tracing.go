package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "inventiv-agents/orchestrator"

// TracingOptions selects the exporter. Only the stdout exporter is wired;
// tracing is off unless explicitly enabled.
type TracingOptions struct {
	Enabled     bool
	ServiceName string
}

// SetupTracing installs a global tracer provider and returns its shutdown
// function. With tracing disabled it installs nothing and the returned
// shutdown is a no-op.
func SetupTracing(opts TracingOptions, logger *zap.Logger) (func(context.Context) error, error) {
	if !opts.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "orchestratord"
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("build stdout trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	logger.Info("tracing enabled", zap.String("exporter", "stdout"))

	return provider.Shutdown, nil
}

// Tracer returns the orchestrator tracer from the installed provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
