// Package logging assembles structured slog loggers and formatting helpers used
// across subforge.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code automatically tags
// log lines with job IDs, stages, and correlation IDs. Records emitted inside an
// OpenTelemetry span carry trace_id and span_id. The package also provides a
// no-op logger for tests and a per-job file tee so each job workspace keeps its
// own log next to its artifacts.
package logging
