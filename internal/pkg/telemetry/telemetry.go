/*
Package telemetry installs the OpenTelemetry meter provider.

With an OTLP endpoint configured, metrics are pushed over gRPC by a periodic reader;
otherwise the global no-op provider stays in place and instruments cost nothing.
*/
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"chatterbox/internal/pkg/logx"
)

// InstrumentationName scopes every meter created by the server.
const InstrumentationName = "chatterbox"

// Shutdown flushes and stops the provider.
type Shutdown func(context.Context) error

// Init installs an OTLP/gRPC meter provider when endpoint is non-empty.
func Init(ctx context.Context, endpoint, serviceName string) (Shutdown, error) {
	if endpoint == "" {
		logx.Info("OTLP endpoint not configured, metrics disabled")
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logx.Info("OpenTelemetry metrics initialized", "service", serviceName, "endpoint", endpoint)

	return mp.Shutdown, nil
}

// Meter returns the server meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(InstrumentationName)
}

// Counter creates an Int64Counter on Meter, falling back to a no-op on registration errors.
func Counter(name, description string) metric.Int64Counter {
	c, err := Meter().Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		logx.Warn("Failed to register counter", "name", name, "error", err.Error())
		return noop.Int64Counter{}
	}
	return c
}

// UpDownCounter creates an Int64UpDownCounter on Meter.
func UpDownCounter(name, description string) metric.Int64UpDownCounter {
	c, err := Meter().Int64UpDownCounter(name, metric.WithDescription(description))
	if err != nil {
		logx.Warn("Failed to register up/down counter", "name", name, "error", err.Error())
		return noop.Int64UpDownCounter{}
	}
	return c
}
