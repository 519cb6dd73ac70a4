package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"subforge/internal/jobstore"
	"subforge/internal/logging"
	"subforge/internal/pipeline"
	"subforge/internal/services"
	"subforge/internal/workflow"
)

const maxListLimit = 500

func (s *Server) handleSubtitles(c *gin.Context) {
	req, err := s.parseRequest(c)
	if err != nil {
		s.writeError(c, "", err)
		return
	}
	defer func() { _ = req.Source.Discard() }()
	result, err := s.manager.Process(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, result.JobID, err)
		return
	}
	c.JSON(http.StatusOK, pipeline.NewResponse(result))
}

func (s *Server) handleSubmit(c *gin.Context) {
	req, err := s.parseRequest(c)
	if err != nil {
		s.writeError(c, "", err)
		return
	}
	id, err := s.manager.Submit(c.Request.Context(), req)
	if err != nil {
		_ = req.Source.Discard()
		s.writeError(c, "", err)
		return
	}
	c.Header("Location", "/api/v1/jobs/"+id)
	c.JSON(http.StatusAccepted, SubmitResponse{
		JobID:     id,
		StatusURL: "/api/v1/jobs/" + id,
		EventsURL: "/api/v1/jobs/" + id + "/events",
	})
}

func (s *Server) handleListJobs(c *gin.Context) {
	filter := jobstore.Filter{UserID: userFrom(c), Limit: 50}
	if c.Query("all") == "true" && c.GetHeader(headerUserID) == "" {
		filter.UserID = ""
	}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := jobstore.Status(strings.TrimSpace(part))
			switch status {
			case jobstore.StatusPending, jobstore.StatusRunning, jobstore.StatusCompleted, jobstore.StatusFailed:
				filter.Statuses = append(filter.Statuses, status)
			default:
				c.JSON(http.StatusBadRequest, MessageResponse{Error: "unknown status " + strconv.Quote(part)})
				return
			}
		}
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, MessageResponse{Error: "limit must be a positive integer"})
			return
		}
		filter.Limit = min(limit, maxListLimit)
	}
	jobs, err := s.manager.List(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, "", err)
		return
	}
	if jobs == nil {
		jobs = []*jobstore.Job{}
	}
	c.JSON(http.StatusOK, JobList{Jobs: jobs, Count: len(jobs)})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, ok := s.ownedJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleCancelJob(c *gin.Context) {
	job, ok := s.ownedJob(c)
	if !ok {
		return
	}
	if err := s.manager.Cancel(c.Request.Context(), job.ID); err != nil {
		s.writeError(c, job.ID, err)
		return
	}
	c.JSON(http.StatusAccepted, MessageResponse{Message: "cancel requested", JobID: job.ID})
}

func (s *Server) handlePurgeJob(c *gin.Context) {
	job, ok := s.ownedJob(c)
	if !ok {
		return
	}
	if err := s.manager.Purge(c.Request.Context(), job.ID); err != nil {
		s.writeError(c, job.ID, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleArtifact(c *gin.Context) {
	path, err := s.local.Open(c.Param("job"), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, MessageResponse{Error: "artifact not found"})
		return
	}
	c.FileAttachment(path, c.Param("name"))
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	resp := HealthResponse{
		Status:   "ok",
		Time:     time.Now().UTC(),
		Workflow: s.manager.Status(ctx),
	}
	if s.readiness != nil {
		resp.Dependencies = s.readiness(ctx)
	}
	code := http.StatusOK
	for _, dep := range resp.Dependencies {
		if !dep.Ready && !dep.Optional {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, resp)
}

// ownedJob loads :id and hides jobs that belong to a different user.
func (s *Server) ownedJob(c *gin.Context) (*jobstore.Job, bool) {
	id := strings.TrimSpace(c.Param("id"))
	job, err := s.manager.Get(c.Request.Context(), id)
	if err == nil && c.GetHeader(headerUserID) != "" && job.UserID != userFrom(c) {
		err = jobstore.ErrNotFound
	}
	if err != nil {
		s.writeError(c, id, err)
		return nil, false
	}
	return job, true
}

// writeError maps manager and pipeline errors to status codes and bodies.
func (s *Server) writeError(c *gin.Context, jobID string, err error) {
	var quotaErr *workflow.QuotaError
	switch {
	case errors.As(err, &quotaErr):
		c.JSON(http.StatusTooManyRequests, QuotaResponse{
			Error:    quotaErr.Error(),
			Kind:     "QuotaExceeded",
			Decision: quotaErr.Decision,
		})
		return
	case jobstore.IsNotFound(err):
		c.JSON(http.StatusNotFound, MessageResponse{Error: "job not found", JobID: jobID})
		return
	case errors.Is(err, workflow.ErrJobFinished):
		c.JSON(http.StatusConflict, MessageResponse{Error: err.Error(), JobID: jobID})
		return
	case errors.Is(err, workflow.ErrNotRunning):
		c.JSON(http.StatusServiceUnavailable, MessageResponse{Error: err.Error()})
		return
	}

	if jobID == "" {
		if id, ok := services.JobIDFromContext(c.Request.Context()); ok {
			jobID = id
		}
	}
	status, body := pipeline.NewErrorResponse(jobID, err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(c.Request.Context(), s.logger).Warn("request failed",
			logging.Int("status", status),
			logging.String(logging.FieldErrorKind, body.Kind),
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_error"),
		)
	}
	c.JSON(status, body)
}
