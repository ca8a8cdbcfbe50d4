// Package telemetry wires the OpenTelemetry SDK: OTLP exporters for traces,
// metrics, and logs, plus Go runtime metrics. Everything is gated on the
// telemetry config; when disabled, the global providers stay no-ops.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/huddle/api/internal/config"
)

// Providers holds the SDK providers so callers can hand them to bridges and
// shut them down in order.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Meter  *sdkmetric.MeterProvider
	Logger *sdklog.LoggerProvider
}

// Setup builds exporters per cfg.Protocol, installs the global providers,
// and starts runtime metric collection.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (*Providers, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", "huddle"),
	)

	traceExp, metricExp, logExp, err := exporters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	p := &Providers{
		Tracer: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExp),
			sdktrace.WithResource(res),
		),
		Meter: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
			sdkmetric.WithResource(res),
		),
		Logger: sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
			sdklog.WithResource(res),
		),
	}

	otel.SetTracerProvider(p.Tracer)
	otel.SetMeterProvider(p.Meter)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if err := runtime.Start(runtime.WithMeterProvider(p.Meter)); err != nil {
		return nil, fmt.Errorf("starting runtime metrics: %w", err)
	}

	return p, nil
}

func exporters(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, sdkmetric.Exporter, sdklog.Exporter, error) {
	switch cfg.Protocol {
	case "http":
		var topts []otlptracehttp.Option
		var mopts []otlpmetrichttp.Option
		var lopts []otlploghttp.Option
		if cfg.Endpoint != "" {
			topts = append(topts, otlptracehttp.WithEndpointURL(cfg.Endpoint))
			mopts = append(mopts, otlpmetrichttp.WithEndpointURL(cfg.Endpoint))
			lopts = append(lopts, otlploghttp.WithEndpointURL(cfg.Endpoint))
		}
		traceExp, err := otlptracehttp.New(ctx, topts...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		metricExp, err := otlpmetrichttp.New(ctx, mopts...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		logExp, err := otlploghttp.New(ctx, lopts...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating log exporter: %w", err)
		}
		return traceExp, metricExp, logExp, nil

	case "", "grpc":
		var topts []otlptracegrpc.Option
		var mopts []otlpmetricgrpc.Option
		var lopts []otlploggrpc.Option
		if cfg.Endpoint != "" {
			topts = append(topts, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
			mopts = append(mopts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithInsecure())
			lopts = append(lopts, otlploggrpc.WithEndpoint(cfg.Endpoint), otlploggrpc.WithInsecure())
		}
		traceExp, err := otlptracegrpc.New(ctx, topts...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		metricExp, err := otlpmetricgrpc.New(ctx, mopts...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		logExp, err := otlploggrpc.New(ctx, lopts...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating log exporter: %w", err)
		}
		return traceExp, metricExp, logExp, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown telemetry protocol %q", cfg.Protocol)
	}
}

// Shutdown flushes and stops all providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return errors.Join(
		p.Tracer.Shutdown(ctx),
		p.Meter.Shutdown(ctx),
		p.Logger.Shutdown(ctx),
	)
}
