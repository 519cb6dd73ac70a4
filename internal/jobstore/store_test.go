package jobstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"subforge/internal/jobstore"
	"subforge/internal/services"
	"subforge/internal/testsupport"
)

func newJob(id string) *jobstore.Job {
	return &jobstore.Job{
		ID:             id,
		UserID:         "user-1",
		Source:         "upload:clip.mp4",
		SourceLanguage: "auto",
		TargetLanguage: "es",
		Mode:           "burn",
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.Create(ctx, newJob("job-a")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, err := store.Get(ctx, "job-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != jobstore.StatusPending {
		t.Fatalf("expected pending status, got %q", got.Status)
	}
	if got.Stage != "idle" {
		t.Fatalf("expected idle stage, got %q", got.Stage)
	}
	if got.TargetLanguage != "es" || got.Mode != "burn" || got.UserID != "user-1" {
		t.Fatalf("unexpected job fields: %#v", got)
	}
	if got.CreatedAt.IsZero() || got.FinishedAt != nil || got.ExpiresAt != nil {
		t.Fatalf("unexpected timestamps: %#v", got)
	}
	if store.Path() != cfg.DatabasePath() {
		t.Fatalf("expected db at %q, got %q", cfg.DatabasePath(), store.Path())
	}
}

func TestCreateRequiresID(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if err := store.Create(context.Background(), &jobstore.Job{}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	_, err := store.Get(context.Background(), "nope")
	if !jobstore.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected services.ErrNotFound in chain, got %v", err)
	}
}

func TestUpdateProgressNeverDecreases(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	if err := store.Create(ctx, newJob("job-p")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.MarkRunning(ctx, "job-p", "/tmp/ws"); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if err := store.UpdateProgress(ctx, "job-p", "transcribing", 30, "Transcribing audio"); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if err := store.UpdateProgress(ctx, "job-p", "transcribing", 20, "late event"); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	got, err := store.Get(ctx, "job-p")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != jobstore.StatusRunning || got.Workspace != "/tmp/ws" {
		t.Fatalf("unexpected running state: %#v", got)
	}
	if got.ProgressPercent != 30 {
		t.Fatalf("expected percent to stay at 30, got %v", got.ProgressPercent)
	}
	if got.Stage != "transcribing" {
		t.Fatalf("expected transcribing stage, got %q", got.Stage)
	}
}

func TestUpdateMissingJobReturnsNotFound(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	err := store.UpdateProgress(context.Background(), "ghost", "extracting", 10, "")
	if !jobstore.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMarkCompletedAndFailed(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	for _, id := range []string{"done", "broken"} {
		if err := store.Create(ctx, newJob(id)); err != nil {
			t.Fatalf("Create %s failed: %v", id, err)
		}
	}
	expires := time.Now().Add(time.Hour)

	outcome := jobstore.Outcome{
		VideoURL:         "http://example.test/v.mp4",
		SubtitleURL:      "http://example.test/s.srt",
		Transcription:    "hola",
		Translation:      "hello",
		DetectedLanguage: "es",
	}
	if err := store.MarkCompleted(ctx, "done", outcome, expires); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	done, err := store.Get(ctx, "done")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if done.Status != jobstore.StatusCompleted || done.ProgressPercent != 100 {
		t.Fatalf("unexpected completed job: %#v", done)
	}
	if done.VideoURL != outcome.VideoURL || done.DetectedLanguage != "es" {
		t.Fatalf("outcome not stored: %#v", done)
	}
	if done.FinishedAt == nil || done.ExpiresAt == nil {
		t.Fatalf("expected finished and expiry times: %#v", done)
	}

	failure := jobstore.Failure{Kind: "MuxFailed", Stage: "muxing", Message: "ffmpeg exited 1"}
	if err := store.MarkFailed(ctx, "broken", failure, expires); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	broken, err := store.Get(ctx, "broken")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if broken.Status != jobstore.StatusFailed || broken.ErrorKind != "MuxFailed" || broken.ErrorStage != "muxing" {
		t.Fatalf("unexpected failed job: %#v", broken)
	}
	if broken.VideoURL != "" {
		t.Fatalf("failed job should not carry artifact urls: %#v", broken)
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"first", "second", "third"} {
		job := newJob(id)
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if id == "third" {
			job.UserID = "user-2"
		}
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("Create %s failed: %v", id, err)
		}
	}
	if err := store.MarkFailed(ctx, "first", jobstore.Failure{Kind: "Internal"}, time.Now()); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	all, err := store.List(ctx, jobstore.Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "third" || all[2].ID != "first" {
		t.Fatalf("expected newest-first ordering, got %v", ids(all))
	}

	pending, err := store.List(ctx, jobstore.Filter{Statuses: []jobstore.Status{jobstore.StatusPending}})
	if err != nil {
		t.Fatalf("List pending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending jobs, got %v", ids(pending))
	}

	mine, err := store.List(ctx, jobstore.Filter{UserID: "user-1", Limit: 1})
	if err != nil {
		t.Fatalf("List by user failed: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "second" {
		t.Fatalf("expected only second, got %v", ids(mine))
	}
}

func TestExpiredAndDelete(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	for _, id := range []string{"old", "fresh", "running"} {
		if err := store.Create(ctx, newJob(id)); err != nil {
			t.Fatalf("Create %s failed: %v", id, err)
		}
	}
	now := time.Now()
	if err := store.MarkCompleted(ctx, "old", jobstore.Outcome{}, now.Add(-time.Minute)); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if err := store.MarkCompleted(ctx, "fresh", jobstore.Outcome{}, now.Add(time.Hour)); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	expired, err := store.Expired(ctx, now)
	if err != nil {
		t.Fatalf("Expired failed: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "old" {
		t.Fatalf("expected only old to be expired, got %v", ids(expired))
	}

	if err := store.Delete(ctx, "old"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "old"); !jobstore.IsNotFound(err) {
		t.Fatalf("expected deleted job to be missing, got %v", err)
	}
	if err := store.Delete(ctx, "old"); !jobstore.IsNotFound(err) {
		t.Fatalf("expected second delete to report not found, got %v", err)
	}
}

func TestResetInFlightFailsPendingAndRunning(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	for _, id := range []string{"queued", "active", "finished"} {
		if err := store.Create(ctx, newJob(id)); err != nil {
			t.Fatalf("Create %s failed: %v", id, err)
		}
	}
	if err := store.MarkRunning(ctx, "active", ""); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if err := store.UpdateProgress(ctx, "active", "translating", 50, ""); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if err := store.MarkCompleted(ctx, "finished", jobstore.Outcome{}, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	count, err := store.ResetInFlight(ctx, "Internal", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ResetInFlight failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 reset jobs, got %d", count)
	}
	active, err := store.Get(ctx, "active")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if active.Status != jobstore.StatusFailed || active.ErrorStage != "translating" || active.ErrorMessage != jobstore.DaemonStopReason {
		t.Fatalf("unexpected reset job: %#v", active)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[jobstore.StatusFailed] != 2 || stats[jobstore.StatusCompleted] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestUsageLedger(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	now := time.Now()
	entries := []time.Duration{-30 * time.Hour, -20 * time.Hour, -2 * time.Hour}
	for i, offset := range entries {
		if err := store.RecordUsage(ctx, "user-1", "job-"+string(rune('a'+i)), now.Add(offset)); err != nil {
			t.Fatalf("RecordUsage failed: %v", err)
		}
	}
	if err := store.RecordUsage(ctx, "user-2", "job-z", now); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}

	since := now.Add(-24 * time.Hour)
	count, err := store.UsageSince(ctx, "user-1", since)
	if err != nil {
		t.Fatalf("UsageSince failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 entries in window, got %d", count)
	}

	oldest, ok, err := store.OldestUsageSince(ctx, "user-1", since)
	if err != nil || !ok {
		t.Fatalf("OldestUsageSince failed: ok=%v err=%v", ok, err)
	}
	if diff := oldest.Sub(now.Add(-20 * time.Hour)); diff < -time.Millisecond || diff > time.Millisecond {
		t.Fatalf("unexpected oldest entry %v", oldest)
	}

	if _, ok, err := store.OldestUsageSince(ctx, "nobody", since); err != nil || ok {
		t.Fatalf("expected no usage for unknown user, ok=%v err=%v", ok, err)
	}

	pruned, err := store.PruneUsage(ctx, since)
	if err != nil {
		t.Fatalf("PruneUsage failed: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", pruned)
	}
}

func TestReopenKeepsData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := jobstore.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Create(context.Background(), newJob("persist")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := jobstore.OpenPath(filepath.Join(cfg.Paths.StateDir, filepath.Base(cfg.DatabasePath())))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.Get(context.Background(), "persist"); err != nil {
		t.Fatalf("expected job after reopen: %v", err)
	}
}

func ids(jobs []*jobstore.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, job.ID)
	}
	return out
}
