// Package daemon coordinates the long-running subforged process.
//
// It wires configuration, the job store, the artifact backend, the pipeline
// runtime, the workflow manager, the staging sweeper, and the HTTP API into a
// single lifecycle with flock-based locking to prevent multiple instances
// sharing one state directory.
//
// Keep orchestration logic here: individual pipeline stages live in their
// respective packages while the daemon focuses on startup, shutdown, and
// health reporting.
package daemon
