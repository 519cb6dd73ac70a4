// Package services defines shared utilities consumed by the pipeline stages and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, user IDs, and correlation
//     identifiers for logging and tracing.
//   - The failure taxonomy (Kind) and the classified Error type every stage
//     returns, plus the legacy marker errors and Wrap helper used for
//     configuration and tooling failures.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
