package pipeline

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"subforge/internal/extract"
	"subforge/internal/mux"
	"subforge/internal/services"
)

// Request is the input to one pipeline run.
type Request struct {
	// JobID is generated when empty.
	JobID          string
	UserID         string
	Source         extract.Source
	SourceLanguage string
	TargetLanguage string
	Mode           mux.Mode
	Observer       Observer
}

// Job is the in-flight state of one run. Paths in TempArtifacts are owned by
// the job and removed when it finishes.
type Job struct {
	ID            string
	Stage         Stage
	Workspace     string
	TempArtifacts []string
	StartedAt     time.Time
}

func (j *Job) track(path string) {
	if strings.TrimSpace(path) != "" {
		j.TempArtifacts = append(j.TempArtifacts, path)
	}
}

// Result describes a completed run.
type Result struct {
	JobID            string        `json:"jobId"`
	VideoURL         string        `json:"videoUrl"`
	SubtitleURL      string        `json:"subtitleUrl"`
	Transcription    string        `json:"transcription"`
	Translation      string        `json:"translation,omitempty"`
	SourceLanguage   string        `json:"sourceLanguage"`
	TargetLanguage   string        `json:"targetLanguage"`
	Translated       bool          `json:"translated"`
	FallbackSegments []int         `json:"fallbackSegments,omitempty"`
	SegmentCount     int           `json:"segmentCount"`
	Mode             mux.Mode      `json:"mode"`
	VideoPath        string        `json:"-"`
	SubtitlePath     string        `json:"-"`
	Workspace        string        `json:"-"`
	Elapsed          time.Duration `json:"-"`
}

// Response is the success body returned to callers of the entry point.
type Response struct {
	JobID         string `json:"jobId"`
	VideoURL      string `json:"videoUrl"`
	SubtitleURL   string `json:"subtitleUrl"`
	Transcription string `json:"transcription"`
	Translation   string `json:"translation,omitempty"`
}

// NewResponse converts a Result to the success body.
func NewResponse(r Result) Response {
	resp := Response{
		JobID:         r.JobID,
		VideoURL:      r.VideoURL,
		SubtitleURL:   r.SubtitleURL,
		Transcription: r.Transcription,
	}
	if r.Translated {
		resp.Translation = r.Translation
	}
	return resp
}

// ErrorResponse is the failure body returned to callers of the entry point.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Kind      string    `json:"kind"`
	Stage     string    `json:"stage,omitempty"`
	Hint      string    `json:"hint,omitempty"`
	JobID     string    `json:"jobId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorResponse classifies err into the failure body and status code.
func NewErrorResponse(jobID string, err error) (int, ErrorResponse) {
	kind := services.KindOf(err)
	message := "processing failed"
	var classified *services.Error
	if errors.As(err, &classified) && strings.TrimSpace(classified.Message) != "" {
		message = classified.Message
	} else if err != nil {
		message = err.Error()
	}
	return StatusCode(kind), ErrorResponse{
		Error:     message,
		Kind:      string(kind),
		Stage:     services.StageOf(err),
		Hint:      kind.Hint(),
		JobID:     jobID,
		Timestamp: time.Now().UTC(),
	}
}

// StatusClientClosedRequest is reported when the caller canceled the job.
const StatusClientClosedRequest = 499

// StatusCode maps a failure kind to an HTTP status. Caller faults are 4xx.
func StatusCode(kind services.Kind) int {
	switch kind {
	case services.KindInvalidSource:
		return http.StatusBadRequest
	case services.KindInputTooLarge:
		return http.StatusRequestEntityTooLarge
	case services.KindNoAudioStream, services.KindDownloadFailed:
		return http.StatusUnprocessableEntity
	case services.KindCanceled:
		return StatusClientClosedRequest
	case services.KindTimeout:
		return http.StatusGatewayTimeout
	case services.KindTranscriptionEngineError, services.KindTranslationEngineError, services.KindPublishFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
