package logs

import (
	"path/filepath"
	"strings"
)

// CurrentLogName is the stable pointer to the active daemon log.
const CurrentLogName = "subforge.log"

// CurrentPath returns the daemon log pointer inside logDir.
func CurrentPath(logDir string) string {
	return filepath.Join(logDir, CurrentLogName)
}

// JobDir returns the directory holding per-job logs.
func JobDir(logDir string) string {
	return filepath.Join(logDir, "jobs")
}

// JobPath returns the log file for jobID.
func JobPath(logDir, jobID string) string {
	return filepath.Join(JobDir(logDir), filepath.Base(strings.TrimSpace(jobID))+".log")
}
