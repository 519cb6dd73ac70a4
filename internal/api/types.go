package api

import (
	"time"

	"subforge/internal/jobstore"
	"subforge/internal/pipeline"
	"subforge/internal/quota"
	"subforge/internal/workflow"
)

// SubmitRequest is the JSON form of a job request. Multipart requests use the
// same field names plus a "file" part.
type SubmitRequest struct {
	URL            string `json:"url" form:"url"`
	SourceLanguage string `json:"sourceLanguage" form:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage" form:"targetLanguage"`
	Mode           string `json:"mode" form:"mode"`
}

// SubmitResponse acknowledges an accepted background job.
type SubmitResponse struct {
	JobID     string `json:"jobId"`
	StatusURL string `json:"statusUrl"`
	EventsURL string `json:"eventsUrl"`
}

// JobList wraps a page of jobs.
type JobList struct {
	Jobs  []*jobstore.Job `json:"jobs"`
	Count int             `json:"count"`
}

// QuotaResponse is the 429 body.
type QuotaResponse struct {
	Error    string         `json:"error"`
	Kind     string         `json:"kind"`
	Decision quota.Decision `json:"decision"`
}

// MessageResponse is a plain error or acknowledgement body.
type MessageResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	JobID   string `json:"jobId,omitempty"`
}

// DependencyStatus reports one readiness check.
type DependencyStatus struct {
	Name     string `json:"name"`
	Ready    bool   `json:"ready"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status       string                 `json:"status"`
	Time         time.Time              `json:"time"`
	Workflow     workflow.StatusSummary `json:"workflow"`
	Dependencies []DependencyStatus     `json:"dependencies,omitempty"`
}

// Event is one websocket message. Type is "progress" while the job runs and
// "status" for the final job snapshot.
type Event struct {
	Type     string             `json:"type"`
	Progress *pipeline.Progress `json:"progress,omitempty"`
	Job      *jobstore.Job      `json:"job,omitempty"`
}
