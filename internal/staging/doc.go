// Package staging manages per-job workspace directories under the staging
// root.
//
// Each job owns one directory named by its id. CleanStale removes workspaces
// whose modification time falls outside the retention window, skipping any
// the caller reports as active, and Sweeper runs that cleanup on an interval
// independent of any job. ListDirectories backs the CLI cleanup report.
package staging
