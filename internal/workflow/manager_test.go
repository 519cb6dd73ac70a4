package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"subforge/internal/artifacts"
	"subforge/internal/config"
	"subforge/internal/extract"
	"subforge/internal/jobstore"
	"subforge/internal/logging"
	"subforge/internal/mux"
	"subforge/internal/pipeline"
	"subforge/internal/quota"
	"subforge/internal/services"
	"subforge/internal/testsupport"
	"subforge/internal/transcribe"
	"subforge/internal/transcript"
	"subforge/internal/translate"
	"subforge/internal/workflow"
)

type stubExtractor struct{}

func (stubExtractor) Resolve(_ context.Context, _ extract.Source, dir string) (extract.Input, error) {
	path := filepath.Join(dir, "input.mp4")
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		return extract.Input{}, err
	}
	return extract.Input{Path: path, SizeBytes: 5, MIME: "video/mp4", Owned: true}, nil
}

func (stubExtractor) Extract(_ context.Context, _ extract.Input, dir string) (extract.Audio, error) {
	path := filepath.Join(dir, "audio.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return extract.Audio{}, err
	}
	return extract.Audio{Path: path, Format: "mp3", SampleRate: 16000, Channels: 1, SizeBytes: 5}, nil
}

type stubTranscriber struct {
	started chan struct{}
	release chan struct{}
	err     error
}

func (s *stubTranscriber) Transcribe(ctx context.Context, _ transcribe.Request) (transcript.Transcript, error) {
	if s.started != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return transcript.Transcript{}, ctx.Err()
		}
	}
	if s.err != nil {
		return transcript.Transcript{}, s.err
	}
	return transcript.Transcript{
		FullText:       "hello there",
		SourceLanguage: "en",
		Segments:       []transcript.Segment{{Index: 0, Start: 0, End: 2, Text: "hello there"}},
	}, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, req mux.Request) (mux.Result, error) {
	if err := os.WriteFile(req.OutputPath, []byte("subtitled"), 0o644); err != nil {
		return mux.Result{}, err
	}
	return mux.Result{OutputPath: req.OutputPath, SizeBytes: 9, Mode: req.Mode}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	cfg         *config.Config
	store       *jobstore.Store
	transcriber *stubTranscriber
	clock       *clock
	manager     *workflow.Manager
}

func newFixture(t *testing.T, mutate func(*config.Config), opts ...workflow.ManagerOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.MaxConcurrentJobs = 2
	if mutate != nil {
		mutate(cfg)
	}
	store := testsupport.MustOpenStore(t, cfg)
	arts := artifacts.NewLocal(cfg.Paths.StagingDir, "http://subforge.test")
	f := &fixture{
		cfg:         cfg,
		store:       store,
		transcriber: &stubTranscriber{},
		clock:       &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	logger := logging.NewNop()
	runtime := pipeline.NewRuntime(cfg, logger, pipeline.WithComponentOverrides(func(c *pipeline.Components) {
		c.Extractor = stubExtractor{}
		c.Transcriber = f.transcriber
		c.Translator = translate.NewTranslator(nil, nil, logger)
		c.Embedder = stubEmbedder{}
		c.Artifacts = arts
	}))
	opts = append([]workflow.ManagerOption{workflow.WithClock(f.clock.Now)}, opts...)
	manager, err := workflow.NewManager(cfg, store, runtime, arts, logger, opts...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	f.manager = manager
	t.Cleanup(manager.Stop)
	return f
}

func request(userID string) pipeline.Request {
	return pipeline.Request{
		UserID:         userID,
		Source:         extract.FromBytes([]byte("video"), "clip.mp4"),
		TargetLanguage: "es",
	}
}

func waitForStatus(t *testing.T, store *jobstore.Store, id string, want jobstore.Status) *jobstore.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.Get(context.Background(), id)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", id, want)
	return nil
}

func TestProcessPersistsCompletedJob(t *testing.T) {
	f := newFixture(t, nil)
	result, err := f.manager.Process(context.Background(), request(""))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	job, err := f.store.Get(context.Background(), result.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != jobstore.StatusCompleted || job.ProgressPercent != 100 {
		t.Fatalf("unexpected job state %s %.0f", job.Status, job.ProgressPercent)
	}
	if job.UserID != quota.AnonymousUser || job.VideoURL != result.VideoURL || job.DetectedLanguage != "en" {
		t.Fatalf("unexpected row %#v", job)
	}
	if job.ExpiresAt == nil || !job.ExpiresAt.Equal(f.clock.Now().Add(f.cfg.Retention())) {
		t.Fatalf("expected expiry at retention horizon, got %v", job.ExpiresAt)
	}
	if _, err := os.Stat(filepath.Join(f.cfg.Paths.LogDir, "jobs", result.JobID+".log")); err != nil {
		t.Fatalf("expected job log: %v", err)
	}
	if f.manager.IsActive(result.JobID) {
		t.Fatal("finished job must not be active")
	}
}

func TestProcessRecordsFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.transcriber.err = services.Fail(services.KindTranscriptionEngineError, "transcribing", "openai", "engine returned http 401", nil)

	_, err := f.manager.Process(context.Background(), request("alice"))
	if services.KindOf(err) != services.KindTranscriptionEngineError {
		t.Fatalf("expected engine error, got %v", err)
	}
	jobs, err := f.store.List(context.Background(), jobstore.Filter{UserID: "alice"})
	if err != nil || len(jobs) != 1 {
		t.Fatalf("expected one job, got %d (%v)", len(jobs), err)
	}
	job := jobs[0]
	if job.Status != jobstore.StatusFailed || job.ErrorKind != "TranscriptionEngineError" || job.ErrorStage != "transcribing" {
		t.Fatalf("unexpected failure row %#v", job)
	}
	if job.ErrorMessage != "engine returned http 401" {
		t.Fatalf("unexpected failure message %q", job.ErrorMessage)
	}
}

func TestProcessInvalidRequestCreatesNoRow(t *testing.T) {
	f := newFixture(t, nil)
	req := request("")
	req.TargetLanguage = ""
	_, err := f.manager.Process(context.Background(), req)
	if services.KindOf(err) != services.KindInvalidSource {
		t.Fatalf("expected InvalidSource, got %v", err)
	}
	jobs, err := f.store.List(context.Background(), jobstore.Filter{})
	if err != nil || len(jobs) != 0 {
		t.Fatalf("expected no rows, got %d (%v)", len(jobs), err)
	}
}

func TestQuotaRefusesOverLimit(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Quota.DailyJobLimit = 1 })
	if _, ok := f.manager.Quota().(*quota.Ledger); !ok {
		t.Fatalf("expected ledger policy, got %T", f.manager.Quota())
	}

	if _, err := f.manager.Process(context.Background(), request("bob")); err != nil {
		t.Fatalf("first job: %v", err)
	}
	_, err := f.manager.Process(context.Background(), request("bob"))
	if !errors.Is(err, workflow.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	var quotaErr *workflow.QuotaError
	if !errors.As(err, &quotaErr) || quotaErr.Decision.NextAvailableAt == nil || quotaErr.Decision.Limit != 1 {
		t.Fatalf("expected decision details, got %#v", quotaErr)
	}
	if _, err := f.manager.Process(context.Background(), request("carol")); err != nil {
		t.Fatalf("other users keep their allowance: %v", err)
	}
}

func TestSubmitRequiresStart(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.manager.Submit(context.Background(), request("")); !errors.Is(err, workflow.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestSubmitStreamsProgress(t *testing.T) {
	f := newFixture(t, nil)
	f.transcriber.started = make(chan struct{}, 1)
	f.transcriber.release = make(chan struct{})
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	id, err := f.manager.Submit(context.Background(), request(""))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	events, cancel, ok := f.manager.Subscribe(id)
	if !ok {
		t.Fatal("expected in-flight job to accept subscribers")
	}
	defer cancel()

	<-f.transcriber.started
	if !f.manager.IsActive(id) {
		t.Fatal("submitted job should be active")
	}
	running := waitForStatus(t, f.store, id, jobstore.StatusRunning)
	if running.Workspace != filepath.Join(f.cfg.Paths.StagingDir, id) {
		t.Fatalf("unexpected workspace %q", running.Workspace)
	}
	close(f.transcriber.release)

	var last pipeline.Progress
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case ev, open := <-events:
			if !open {
				done = true
				continue
			}
			if ev.Percent < last.Percent {
				t.Fatalf("progress regressed from %v to %v", last.Percent, ev.Percent)
			}
			last = ev
		case <-timeout:
			t.Fatal("event stream never closed")
		}
	}
	if last.Stage != pipeline.StageCompleted || last.Percent != 100 {
		t.Fatalf("expected completion event, got %#v", last)
	}
	waitForStatus(t, f.store, id, jobstore.StatusCompleted)
	if _, _, ok := f.manager.Subscribe(id); ok {
		t.Fatal("finished job must not accept subscribers")
	}
}

func TestCancelRunningJob(t *testing.T) {
	f := newFixture(t, nil)
	f.transcriber.started = make(chan struct{}, 1)
	f.transcriber.release = make(chan struct{})
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	id, err := f.manager.Submit(context.Background(), request(""))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-f.transcriber.started

	if err := f.manager.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	job := waitForStatus(t, f.store, id, jobstore.StatusFailed)
	if job.ErrorKind != string(services.KindCanceled) {
		t.Fatalf("expected Canceled, got %q", job.ErrorKind)
	}
	if _, err := os.Stat(filepath.Join(f.cfg.Paths.StagingDir, id)); !os.IsNotExist(err) {
		t.Fatal("canceled job workspace must be removed")
	}
	deadline := time.Now().Add(5 * time.Second)
	for f.manager.IsActive(id) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := f.manager.Cancel(context.Background(), id); !errors.Is(err, workflow.ErrJobFinished) {
		t.Fatalf("expected ErrJobFinished, got %v", err)
	}
	if err := f.manager.Cancel(context.Background(), "missing"); !jobstore.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPurgeRemovesJobAndArtifacts(t *testing.T) {
	f := newFixture(t, nil)
	result, err := f.manager.Process(context.Background(), request(""))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	workspace := filepath.Join(f.cfg.Paths.StagingDir, result.JobID)
	if _, err := os.Stat(filepath.Join(workspace, "subtitled.mp4")); err != nil {
		t.Fatalf("expected published video: %v", err)
	}

	if err := f.manager.Purge(context.Background(), result.JobID); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, err := f.store.Get(context.Background(), result.JobID); !jobstore.IsNotFound(err) {
		t.Fatalf("expected row deleted, got %v", err)
	}
	if _, err := os.Stat(workspace); !os.IsNotExist(err) {
		t.Fatal("expected workspace removed")
	}
	if err := f.manager.Purge(context.Background(), result.JobID); !jobstore.IsNotFound(err) {
		t.Fatalf("second purge should report not found, got %v", err)
	}
}

func TestReapOnceRemovesExpiredJobs(t *testing.T) {
	f := newFixture(t, nil)
	result, err := f.manager.Process(context.Background(), request(""))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	removed, err := f.manager.ReapOnce(context.Background())
	if err != nil || removed != 0 {
		t.Fatalf("nothing should expire yet: %d %v", removed, err)
	}

	f.clock.Advance(f.cfg.Retention() + time.Minute)
	removed, err = f.manager.ReapOnce(context.Background())
	if err != nil {
		t.Fatalf("ReapOnce: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one job reaped, got %d", removed)
	}
	if _, err := f.store.Get(context.Background(), result.JobID); !jobstore.IsNotFound(err) {
		t.Fatalf("expected row deleted, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.cfg.Paths.StagingDir, result.JobID)); !os.IsNotExist(err) {
		t.Fatal("expected workspace removed")
	}
}

func TestStartFailsInterruptedJobs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.store.Create(ctx, &jobstore.Job{ID: "stale", UserID: "anonymous", Source: "upload", TargetLanguage: "es"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.store.MarkRunning(ctx, "stale", filepath.Join(f.cfg.Paths.StagingDir, "stale")); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}

	if err := f.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.manager.Start(ctx); err == nil {
		t.Fatal("second Start should fail")
	}
	job, err := f.store.Get(ctx, "stale")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != jobstore.StatusFailed || job.ErrorMessage != jobstore.DaemonStopReason {
		t.Fatalf("expected interrupted job failed, got %#v", job)
	}

	status := f.manager.Status(ctx)
	if !status.Running || status.Capacity != 2 || status.JobStats[jobstore.StatusFailed] != 1 {
		t.Fatalf("unexpected status %#v", status)
	}
	if status.Storage != "local" {
		t.Fatalf("unexpected storage %q", status.Storage)
	}
}
