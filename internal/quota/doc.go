// Package quota decides whether a user may start another job and records
// usage once a job completes.
//
// Unlimited allows everything and records nothing. Ledger enforces a rolling
// 24 hour per-user job limit backed by the job store usage table; when the
// limit is reached the decision carries the time the oldest counted job falls
// out of the window.
package quota
