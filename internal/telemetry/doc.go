// Package telemetry wires OpenTelemetry tracing and metrics for the daemon
// and CLI.
//
// Setup installs a resource carrying the service name, the autoprop text map
// propagator, and tracer and meter providers. With exporter "gcp" spans go to
// Cloud Trace and metrics to Cloud Monitoring; with "none" spans are still
// recorded so logs carry trace ids, but nothing leaves the process. When
// telemetry is disabled the global no-op providers stay in place.
//
// Instruments holds the pipeline's counters and histograms so callers do not
// look them up by name.
package telemetry
