package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"subforge/internal/config"
	"subforge/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventJobFailed, notifications.Payload{"jobId": "x"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("nil config should be a noop, got %v", err)
	}
}

type captured struct {
	calls    int
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		got.calls++
		got.title = r.Header.Get("Title")
		got.tags = r.Header.Get("Tags")
		got.priority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		got.body = string(body)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, got
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "completed with translation",
			event: notifications.EventJobCompleted,
			payload: notifications.Payload{
				"jobId":          "job-1",
				"source":         "https://cdn.example.com/videos/talk.mp4?sig=abc",
				"sourceLanguage": "en",
				"targetLanguage": "es",
				"elapsed":        95 * time.Second,
				"subtitleUrl":    "https://subs.example.com/job-1/subtitles.srt",
			},
			expectTitle:   "Subforge - Subtitles Ready",
			expectMessage: "✅ Subtitles ready: talk.mp4\nLanguage: en → es\nElapsed: 1m35s\nhttps://subs.example.com/job-1/subtitles.srt",
			expectTags:    "subforge,job,completed",
		},
		{
			name:  "completed same language upload",
			event: notifications.EventJobCompleted,
			payload: notifications.Payload{
				"source":         "/tmp/staging/job-2/input.mov",
				"sourceLanguage": "fr",
				"targetLanguage": "fr",
			},
			expectTitle:   "Subforge - Subtitles Ready",
			expectMessage: "✅ Subtitles ready: input.mov\nLanguage: fr",
			expectTags:    "subforge,job,completed",
		},
		{
			name:  "failed",
			event: notifications.EventJobFailed,
			payload: notifications.Payload{
				"jobId":  "job-3",
				"stage":  "transcribing",
				"kind":   "TranscriptionProviderError",
				"error":  "provider returned 500",
				"source": "clip.mp4",
			},
			expectTitle:    "Subforge - Job Failed",
			expectMessage:  "❌ Job job-3 failed during transcribing: provider returned 500\nSource: clip.mp4",
			expectTags:     "subforge,job,failed,TranscriptionProviderError",
			expectPriority: "high",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "Subforge - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "subforge,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, got := newNtfyServer(t, http.StatusOK)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			if got.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got.title)
			}
			if got.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got.body)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got.tags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsEventSwitches(t *testing.T) {
	server, got := newNtfyServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Completed = false

	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventJobCompleted, notifications.Payload{"jobId": "a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := svc.Publish(context.Background(), notifications.Event("unknown"), nil); err != nil {
		t.Fatalf("publish unknown: %v", err)
	}
	if got.calls != 0 {
		t.Fatalf("expected suppressed events, got %d calls", got.calls)
	}
	if err := svc.Publish(context.Background(), notifications.EventJobFailed, notifications.Payload{"jobId": "a"}); err != nil {
		t.Fatalf("publish failed event: %v", err)
	}
	if got.calls != 1 || got.body != "❌ Job a failed: unknown" {
		t.Fatalf("unexpected delivery: %+v", got)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server, _ := newNtfyServer(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
}
