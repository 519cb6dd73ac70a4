// Package logs locates and tails subforge log files.
//
// The daemon writes a per-run log behind the subforge.log pointer and one log
// per job under jobs/. Tail reads the last N lines with bounded memory; Follow
// polls for appended lines until its context ends and restarts from the top
// when the file shrinks underneath it.
package logs
