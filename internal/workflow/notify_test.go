package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"subforge/internal/notifications"
	"subforge/internal/services"
	"subforge/internal/workflow"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   notifications.Payload
	err    error
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.last = payload
	return r.err
}

func TestProcessNotifiesCompletion(t *testing.T) {
	rec := &recordingNotifier{}
	f := newFixture(t, nil, workflow.WithNotifier(rec))

	result, err := f.manager.Process(context.Background(), request("bob"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(rec.events) != 1 || rec.events[0] != notifications.EventJobCompleted {
		t.Fatalf("unexpected events %v", rec.events)
	}
	if rec.last["jobId"] != result.JobID || rec.last["source"] != "upload:clip.mp4" || rec.last["subtitleUrl"] != result.SubtitleURL {
		t.Fatalf("unexpected payload %v", rec.last)
	}
}

func TestProcessNotifiesFailure(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("ntfy down")}
	f := newFixture(t, nil, workflow.WithNotifier(rec))
	f.transcriber.err = services.Fail(services.KindTranscriptionEngineError, "transcribing", "openai", "engine returned http 401", nil)

	_, err := f.manager.Process(context.Background(), request("carol"))
	if services.KindOf(err) != services.KindTranscriptionEngineError {
		t.Fatalf("notifier errors must not mask the job error, got %v", err)
	}
	if len(rec.events) != 1 || rec.events[0] != notifications.EventJobFailed {
		t.Fatalf("unexpected events %v", rec.events)
	}
	if rec.last["stage"] != "transcribing" || rec.last["error"] != "engine returned http 401" {
		t.Fatalf("unexpected payload %v", rec.last)
	}
}
