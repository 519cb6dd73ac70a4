package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace"

	"subforge/internal/config"
	"subforge/internal/logging"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.Enabled = false
	shutdown, err := Setup(context.Background(), &cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestSetupWithoutExporterRecordsSpans(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	cfg := config.Default()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Exporter = "none"
	shutdown, err := Setup(context.Background(), &cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown failed: %v", err)
		}
	}()

	ctx, span := Tracer().Start(context.Background(), "setup-check")
	defer span.End()
	if !trace.SpanContextFromContext(ctx).IsValid() {
		t.Fatal("expected a valid span context with an SDK tracer provider")
	}
}

func TestSetupRejectsUnknownExporter(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Exporter = "zipkin"
	if _, err := Setup(context.Background(), &cfg, nil); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestInstrumentsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	inst, err := NewInstruments(provider.Meter("test"))
	if err != nil {
		t.Fatalf("NewInstruments failed: %v", err)
	}
	ctx := context.Background()
	inst.JobStarted(ctx, "burn")
	inst.JobStarted(ctx, "burn")
	inst.JobFailed(ctx, "MuxFailed", "muxing")
	inst.RecordStage(ctx, "extracting", 1.5)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	found := map[string]bool{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			found[m.Name] = true
			if m.Name == "subforge.jobs.started" {
				sum, ok := m.Data.(metricdata.Sum[int64])
				if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 2 {
					t.Fatalf("unexpected started data: %#v", m.Data)
				}
			}
		}
	}
	for _, name := range []string{"subforge.jobs.started", "subforge.jobs.failed", "subforge.stage.duration"} {
		if !found[name] {
			t.Fatalf("missing metric %s", name)
		}
	}

	var nilInst *Instruments
	nilInst.JobCompleted(ctx, "soft")
}
