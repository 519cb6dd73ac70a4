// Package artifacts publishes finished job outputs and hands back download
// URLs.
//
// Three backends share the Store interface. The local store keeps files in
// the job workspace and returns URLs served by the daemon API under
// /artifacts/:job/:name. The gcs and minio stores upload under
// <prefix>/<job id>/<name> and return time-limited signed URLs. Remove deletes
// everything published for a job so the reaper and failure cleanup can treat
// every backend the same way.
package artifacts
