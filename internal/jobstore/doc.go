// Package jobstore persists subtitle jobs and per-user usage in SQLite.
//
// The store runs in WAL mode with a busy timeout, and write operations retry
// briefly on SQLITE_BUSY so the API, workflow manager, and CLI can share one
// database file. The schema is embedded and versioned; a version mismatch is
// reported rather than migrated, since job rows are a short-lived cache whose
// loss only forgets expired artifacts.
//
// Timestamps are stored as fixed-width UTC strings so lexical comparison in
// SQL matches chronological order.
package jobstore
