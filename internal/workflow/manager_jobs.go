package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"subforge/internal/jobstore"
	"subforge/internal/logging"
	"subforge/internal/logs"
	"subforge/internal/mux"
	"subforge/internal/notifications"
	"subforge/internal/pipeline"
	"subforge/internal/quota"
	"subforge/internal/services"
	"subforge/internal/staging"
)

// Process runs req to completion on the caller's goroutine. It waits for a
// free job slot first.
func (m *Manager) Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	orch, err := m.admit(ctx, &req)
	if err != nil {
		return pipeline.Result{}, err
	}
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	job := m.track(req.JobID, cancel)
	defer m.untrack(req.JobID, job)

	if err := m.acquireSlot(jobCtx); err != nil {
		return pipeline.Result{JobID: req.JobID}, m.abandon(ctx, req, err)
	}
	defer m.releaseSlot()
	return m.run(jobCtx, orch, req)
}

// Submit accepts req and runs it in the background. The job id is returned as
// soon as the job row exists.
func (m *Manager) Submit(ctx context.Context, req pipeline.Request) (string, error) {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	if !running {
		return "", ErrNotRunning
	}
	orch, err := m.admit(ctx, &req)
	if err != nil {
		return "", err
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		cancel()
		return "", m.abandon(ctx, req, ErrNotRunning)
	}
	stop := context.AfterFunc(m.base, cancel)
	m.wg.Add(1)
	m.mu.Unlock()
	job := m.track(req.JobID, cancel)

	go func() {
		defer m.wg.Done()
		defer stop()
		defer cancel()
		defer m.untrack(req.JobID, job)
		defer func() { _ = req.Source.Discard() }()
		if err := m.acquireSlot(jobCtx); err != nil {
			_ = m.abandon(jobCtx, req, err)
			return
		}
		defer m.releaseSlot()
		_, _ = m.run(jobCtx, orch, req)
	}()
	return req.JobID, nil
}

// admit applies quota, validates req, assigns its id and persists the pending
// job row.
func (m *Manager) admit(ctx context.Context, req *pipeline.Request) (*pipeline.Orchestrator, error) {
	req.UserID = quota.NormalizeUser(req.UserID)
	decision, err := m.quota.CanProcessMore(ctx, req.UserID)
	if err != nil {
		return nil, services.Fail(services.KindInternal, string(pipeline.StageIdle), "quota", "could not read usage", err)
	}
	if !decision.Allowed {
		m.logger.Info("job refused by quota",
			logging.String(logging.FieldUserID, req.UserID),
			logging.Int("limit", decision.Limit),
			logging.String(logging.FieldEventType, "quota_denied"),
		)
		return nil, &QuotaError{UserID: req.UserID, Decision: decision}
	}

	orch, err := m.runtime.Acquire(ctx)
	if err != nil {
		return nil, services.Fail(services.KindInternal, string(pipeline.StageIdle), "runtime", "pipeline engines unavailable", err)
	}
	if req.Mode == "" {
		if mode, err := mux.ParseMode(m.cfg.Pipeline.Mode); err == nil {
			req.Mode = mode
		}
	}
	if err := orch.Validate(*req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.JobID) == "" {
		req.JobID = uuid.NewString()
	}
	row := &jobstore.Job{
		ID:             req.JobID,
		UserID:         req.UserID,
		Source:         req.Source.Describe(),
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		Mode:           string(req.Mode),
	}
	if err := m.store.Create(ctx, row); err != nil {
		return nil, services.Fail(services.KindInternal, string(pipeline.StageIdle), "persist", "could not record job", err)
	}
	m.bus.open(req.JobID)
	return orch, nil
}

func (m *Manager) acquireSlot(ctx context.Context) error {
	select {
	case m.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) releaseSlot() {
	<-m.slots
}

// run executes an admitted job and records its outcome.
func (m *Manager) run(ctx context.Context, orch *pipeline.Orchestrator, req pipeline.Request) (pipeline.Result, error) {
	jobID := req.JobID
	ctx = services.WithJobID(ctx, jobID)
	ctx = services.WithUserID(ctx, req.UserID)
	persistCtx := context.WithoutCancel(ctx)

	logger, closeLog := m.jobLogger(jobID)
	defer closeLog()

	workspace := filepath.Join(m.cfg.Paths.StagingDir, jobID)
	if err := m.store.MarkRunning(persistCtx, jobID, workspace); err != nil {
		logger.Warn("failed to mark job running",
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_state_write_failed"),
			logging.String(logging.FieldImpact, "job status lags until completion"),
		)
	}

	req.Observer = pipeline.MultiObserver(
		m.progressRecorder(persistCtx, logger),
		pipeline.ObserverFunc(m.bus.publish),
		req.Observer,
	)
	result, err := orch.Run(ctx, req)
	expires := m.now().Add(m.cfg.Retention())
	if err != nil {
		m.setLastError(err)
		failure := failureFor(err)
		if markErr := m.store.MarkFailed(persistCtx, jobID, failure, expires); markErr != nil {
			logger.Warn("failed to record job failure",
				logging.Error(markErr),
				logging.String(logging.FieldEventType, "job_state_write_failed"),
				logging.String(logging.FieldImpact, "job may appear in flight until restart"),
			)
		}
		m.bus.close(jobID)
		m.notify(persistCtx, logger, notifications.EventJobFailed, notifications.Payload{
			"jobId":  jobID,
			"source": req.Source.Describe(),
			"stage":  failure.Stage,
			"kind":   failure.Kind,
			"error":  failure.Message,
		})
		return pipeline.Result{JobID: jobID}, err
	}

	outcome := jobstore.Outcome{
		VideoURL:         result.VideoURL,
		SubtitleURL:      result.SubtitleURL,
		Transcription:    result.Transcription,
		Translation:      result.Translation,
		DetectedLanguage: result.SourceLanguage,
	}
	if err := m.store.MarkCompleted(persistCtx, jobID, outcome, expires); err != nil {
		logger.Warn("failed to record job completion",
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_state_write_failed"),
			logging.String(logging.FieldImpact, "job status lags; artifacts are still published"),
		)
	}
	if err := m.quota.RecordUsage(persistCtx, req.UserID, jobID); err != nil {
		logger.Warn("failed to record quota usage",
			logging.Error(err),
			logging.String(logging.FieldEventType, "quota_record_failed"),
			logging.String(logging.FieldImpact, "job not counted against the daily limit"),
		)
	}
	m.bus.close(jobID)
	m.notify(persistCtx, logger, notifications.EventJobCompleted, notifications.Payload{
		"jobId":          jobID,
		"source":         req.Source.Describe(),
		"sourceLanguage": result.SourceLanguage,
		"targetLanguage": result.TargetLanguage,
		"subtitleUrl":    result.SubtitleURL,
		"elapsed":        result.Elapsed,
	})
	return result, nil
}

func (m *Manager) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		logger.Warn("job notification failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "no push alert for this job"),
		)
	}
}

// abandon records a job that never started running.
func (m *Manager) abandon(ctx context.Context, req pipeline.Request, cause error) error {
	err := services.Fail(services.KindCanceled, string(pipeline.StageIdle), "queue", "job was canceled before it started", cause)
	persistCtx := context.WithoutCancel(ctx)
	if markErr := m.store.MarkFailed(persistCtx, req.JobID, failureFor(err), m.now().Add(m.cfg.Retention())); markErr != nil {
		m.logger.Warn("failed to record canceled job",
			logging.String(logging.FieldJobID, req.JobID),
			logging.Error(markErr),
			logging.String(logging.FieldEventType, "job_state_write_failed"),
		)
	}
	m.bus.publish(pipeline.Progress{
		JobID:     req.JobID,
		Stage:     pipeline.StageFailed,
		Message:   err.Message,
		ErrorKind: string(err.Kind),
		Time:      m.now().UTC(),
	})
	m.bus.close(req.JobID)
	return err
}

func (m *Manager) progressRecorder(ctx context.Context, logger *slog.Logger) pipeline.Observer {
	return pipeline.ObserverFunc(func(p pipeline.Progress) {
		logger.Info("job progress",
			logging.String(logging.FieldStage, string(p.Stage)),
			logging.Float64(logging.FieldProgressPercent, p.Percent),
			logging.String(logging.FieldProgressMessage, p.Message),
			logging.String(logging.FieldEventType, "job_progress"),
		)
		if p.Stage.Terminal() {
			return
		}
		if err := m.store.UpdateProgress(ctx, p.JobID, string(p.Stage), p.Percent, p.Message); err != nil {
			logger.Debug("progress write failed", logging.Error(err))
		}
	})
}

// jobLogger tees the manager logger into logs/jobs/<id>.log.
func (m *Manager) jobLogger(jobID string) (*slog.Logger, func()) {
	path := logs.JobPath(m.cfg.Paths.LogDir, jobID)
	logger, closer, err := logging.NewJobLogger(m.logger, path)
	if err != nil {
		m.logger.Warn("job log unavailable; logging to daemon log only",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_log_unavailable"),
		)
		return m.logger.With(logging.String(logging.FieldJobID, jobID)), func() {}
	}
	return logger.With(logging.String(logging.FieldJobID, jobID)), func() { _ = closer.Close() }
}

func failureFor(err error) jobstore.Failure {
	failure := jobstore.Failure{
		Kind:    string(services.KindOf(err)),
		Stage:   services.StageOf(err),
		Message: err.Error(),
	}
	var svcErr *services.Error
	if errors.As(err, &svcErr) && svcErr.Message != "" {
		failure.Message = svcErr.Message
	}
	return failure
}

// Get returns the persisted job.
func (m *Manager) Get(ctx context.Context, jobID string) (*jobstore.Job, error) {
	return m.store.Get(ctx, jobID)
}

// List returns persisted jobs matching filter.
func (m *Manager) List(ctx context.Context, filter jobstore.Filter) ([]*jobstore.Job, error) {
	return m.store.List(ctx, filter)
}

// Subscribe streams progress for an in-flight job. ok is false when the job
// is not queued or running; callers should read the stored row instead.
func (m *Manager) Subscribe(jobID string) (<-chan pipeline.Progress, func(), bool) {
	return m.bus.subscribe(jobID)
}

// Cancel stops a queued or running job.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	m.mu.RLock()
	job, ok := m.active[jobID]
	m.mu.RUnlock()
	if ok {
		job.cancel()
		m.logger.Info("job cancel requested",
			logging.String(logging.FieldJobID, jobID),
			logging.String(logging.FieldEventType, "job_cancel"),
		)
		return nil
	}
	row, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if row.Status.Terminal() {
		return ErrJobFinished
	}
	return fmt.Errorf("job %s is %s but not owned by this process", jobID, row.Status)
}

// Purge deletes a job now: it is canceled if in flight, then its published
// artifacts, workspace and row are removed.
func (m *Manager) Purge(ctx context.Context, jobID string) error {
	m.mu.RLock()
	job, ok := m.active[jobID]
	m.mu.RUnlock()
	if ok {
		job.cancel()
		select {
		case <-job.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	row, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := m.purge(ctx, jobID, row.Workspace); err != nil {
		return err
	}
	m.logger.Info("job purged",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldEventType, "job_purged"),
	)
	return nil
}

func (m *Manager) purge(ctx context.Context, jobID, workspace string) error {
	if err := m.artifacts.Remove(ctx, jobID); err != nil {
		return err
	}
	if strings.TrimSpace(workspace) == "" {
		workspace = filepath.Join(m.cfg.Paths.StagingDir, jobID)
	}
	if err := staging.RemoveWorkspace(workspace); err != nil {
		return fmt.Errorf("remove workspace %s: %w", workspace, err)
	}
	if err := m.store.Delete(ctx, jobID); err != nil && !jobstore.IsNotFound(err) {
		return err
	}
	return nil
}
