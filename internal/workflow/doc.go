// Package workflow runs subtitle jobs on behalf of the API, CLI and daemon.
//
// The Manager owns the pipeline runtime, the persistent job store, the
// artifact store, the quota policy and the progress event bus. Jobs run either
// synchronously (Process) or in the background (Submit) bounded by
// pipeline.max_concurrent_jobs. A reaper loop deletes expired jobs together
// with their workspaces and published artifacts.
package workflow
