package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mexporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/metric"
	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"subforge/internal/config"
	"subforge/internal/logging"
)

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(context.Context) error

// InstrumentationName scopes tracers and meters created by this module.
const InstrumentationName = "subforge"

// Setup installs providers according to cfg.Telemetry.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if cfg == nil || !cfg.Telemetry.Enabled {
		return noop, nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	var shutdownFuncs []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var err error
		for i := len(shutdownFuncs) - 1; i >= 0; i-- {
			err = errors.Join(err, shutdownFuncs[i](ctx))
		}
		shutdownFuncs = nil
		return err
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(semconv.ServiceName(cfg.Telemetry.ServiceName)),
	)
	if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
		logger.Warn("partial telemetry resource detection",
			logging.Error(err),
			logging.String(logging.FieldEventType, "telemetry_resource_partial"),
			logging.String(logging.FieldImpact, "some resource attributes missing from spans"),
		)
	} else if err != nil {
		return noop, fmt.Errorf("telemetry resource: %w", err)
	}

	otel.SetTextMapPropagator(autoprop.NewTextMapPropagator())

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	switch cfg.Telemetry.Exporter {
	case "gcp":
		traceExporter, err := texporter.New(texporter.WithProjectID(cfg.Telemetry.ProjectID))
		if err != nil {
			return noop, fmt.Errorf("cloud trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(traceExporter))

		metricExporter, err := mexporter.New(mexporter.WithProjectID(cfg.Telemetry.ProjectID))
		if err != nil {
			return noop, fmt.Errorf("cloud monitoring exporter: %w", err)
		}
		interval := time.Duration(cfg.Telemetry.MetricIntervalSeconds) * time.Second
		metricOpts = append(metricOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval)),
		))
	case "none", "":
	default:
		return noop, fmt.Errorf("unknown telemetry exporter %q", cfg.Telemetry.Exporter)
	}

	tp := sdktrace.NewTracerProvider(traceOpts...)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(metricOpts...)
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	otel.SetMeterProvider(mp)

	logger.Info("telemetry enabled",
		logging.String("exporter", cfg.Telemetry.Exporter),
		logging.String("service", cfg.Telemetry.ServiceName),
		logging.String(logging.FieldEventType, "telemetry_enabled"),
	)
	return shutdown, nil
}
