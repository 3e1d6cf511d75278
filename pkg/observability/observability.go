package observability

import (
	"context"

	"creditchat/backend/pkg/logger"

	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Setup wires the OpenTelemetry tracer and meter providers. Traces go to
// stdout; metrics are bridged into the default Prometheus registry so the
// router's /metrics endpoint serves them alongside the hand-rolled
// counters. The returned function flushes and shuts both providers down.
func Setup(serviceName string, log *logger.Logger) (func(context.Context), error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tracerProvider := trace.NewTracerProvider(
		trace.WithBatcher(traceExp),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)

	metricExp, err := otelprom.New()
	if err != nil {
		return nil, err
	}
	meterProvider := metric.NewMeterProvider(
		metric.WithReader(metricExp),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	return func(ctx context.Context) {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Warn("Tracer provider shutdown failed", "error", err.Error())
		}
		if err := meterProvider.Shutdown(ctx); err != nil {
			log.Warn("Meter provider shutdown failed", "error", err.Error())
		}
	}, nil
}
