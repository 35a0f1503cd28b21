package config

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	metricExportInterval = 5 * time.Second
	shutdownTimeout      = 5 * time.Second
)

// ObservabilityProviders holds the OpenTelemetry providers of the process.
type ObservabilityProviders struct {
	TracerProvider *trace.TracerProvider
	MeterProvider  *metric.MeterProvider
	Resource       *resource.Resource
}

// NewObservabilityProviders creates tracer and meter providers and installs them globally.
// Exporters are attached only for configured endpoints; without any the providers record nothing.
func NewObservabilityProviders(ctx context.Context, o Observability) (*ObservabilityProviders, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(o.ServiceName),
			semconv.ServiceVersionKey.String(o.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	traceOptions := []trace.TracerProviderOption{trace.WithResource(res)}

	if o.TraceEndpoint != "" {
		exporterOptions := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(o.TraceEndpoint)}
		if o.Insecure {
			exporterOptions = append(exporterOptions, otlptracegrpc.WithInsecure())
		}

		traceExporter, err := otlptracegrpc.New(ctx, exporterOptions...)
		if err != nil {
			return nil, err
		}

		traceOptions = append(traceOptions, trace.WithBatcher(traceExporter))
	}

	meterOptions := []metric.Option{metric.WithResource(res)}

	if o.MetricsEndpoint != "" {
		exporterOptions := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(o.MetricsEndpoint)}
		if o.Insecure {
			exporterOptions = append(exporterOptions, otlpmetricgrpc.WithInsecure())
		}

		metricExporter, err := otlpmetricgrpc.New(ctx, exporterOptions...)
		if err != nil {
			return nil, err
		}

		meterOptions = append(meterOptions, metric.WithReader(
			metric.NewPeriodicReader(metricExporter, metric.WithInterval(metricExportInterval)),
		))
	}

	providers := &ObservabilityProviders{
		TracerProvider: trace.NewTracerProvider(traceOptions...),
		MeterProvider:  metric.NewMeterProvider(meterOptions...),
		Resource:       res,
	}

	otel.SetTracerProvider(providers.TracerProvider)
	otel.SetMeterProvider(providers.MeterProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return providers, nil
}

// Shutdown flushes and stops both providers.
func (p *ObservabilityProviders) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(p.TracerProvider.Shutdown(ctx), p.MeterProvider.Shutdown(ctx))
}
