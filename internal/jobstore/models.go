package jobstore

import (
	"errors"
	"fmt"
	"time"

	"subforge/internal/services"
)

// Status is the persisted lifecycle of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// DaemonStopReason is recorded on jobs interrupted by a daemon restart.
const DaemonStopReason = "daemon stopped before the job finished"

// ErrNotFound is returned when a job id does not exist.
var ErrNotFound = fmt.Errorf("job %w", services.ErrNotFound)

// IsNotFound reports whether err means the job does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Terminal reports whether s is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one persisted pipeline run.
type Job struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId,omitempty"`
	Source           string     `json:"source"`
	SourceLanguage   string     `json:"sourceLanguage"`
	TargetLanguage   string     `json:"targetLanguage"`
	Mode             string     `json:"mode"`
	Status           Status     `json:"status"`
	Stage            string     `json:"stage"`
	ProgressPercent  float64    `json:"progressPercent"`
	ProgressMessage  string     `json:"progressMessage,omitempty"`
	ErrorKind        string     `json:"errorKind,omitempty"`
	ErrorStage       string     `json:"errorStage,omitempty"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	VideoURL         string     `json:"videoUrl,omitempty"`
	SubtitleURL      string     `json:"subtitleUrl,omitempty"`
	Transcription    string     `json:"transcription,omitempty"`
	Translation      string     `json:"translation,omitempty"`
	DetectedLanguage string     `json:"detectedLanguage,omitempty"`
	Workspace        string     `json:"-"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	FinishedAt       *time.Time `json:"finishedAt,omitempty"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
}

// Outcome is written when a job completes.
type Outcome struct {
	VideoURL         string
	SubtitleURL      string
	Transcription    string
	Translation      string
	DetectedLanguage string
}

// Failure is written when a job fails.
type Failure struct {
	Kind    string
	Stage   string
	Message string
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Statuses []Status
	UserID   string
	Limit    int
}
