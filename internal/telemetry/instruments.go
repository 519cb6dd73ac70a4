package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Instruments are the pipeline's metric instruments.
type Instruments struct {
	JobsStarted   metric.Int64Counter
	JobsCompleted metric.Int64Counter
	JobsFailed    metric.Int64Counter
	StageDuration metric.Float64Histogram
}

// NewInstruments creates instruments on meter, falling back to the global
// meter provider when meter is nil.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}
	started, err := meter.Int64Counter("subforge.jobs.started",
		metric.WithDescription("Jobs accepted for processing"))
	if err != nil {
		return nil, err
	}
	completed, err := meter.Int64Counter("subforge.jobs.completed",
		metric.WithDescription("Jobs that reached the completed state"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("subforge.jobs.failed",
		metric.WithDescription("Jobs that failed, by error kind"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("subforge.stage.duration",
		metric.WithDescription("Wall time spent in each pipeline stage"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Instruments{
		JobsStarted:   started,
		JobsCompleted: completed,
		JobsFailed:    failed,
		StageDuration: duration,
	}, nil
}

// JobStarted increments the started counter.
func (i *Instruments) JobStarted(ctx context.Context, mode string) {
	if i == nil {
		return
	}
	i.JobsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// JobCompleted increments the completed counter.
func (i *Instruments) JobCompleted(ctx context.Context, mode string) {
	if i == nil {
		return
	}
	i.JobsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// JobFailed increments the failed counter for kind.
func (i *Instruments) JobFailed(ctx context.Context, kind, stage string) {
	if i == nil {
		return
	}
	i.JobsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("stage", stage),
	))
}

// RecordStage records how long stage took.
func (i *Instruments) RecordStage(ctx context.Context, stage string, seconds float64) {
	if i == nil {
		return
	}
	i.StageDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("stage", stage)))
}

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}
