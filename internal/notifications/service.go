package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"subforge/internal/config"
)

const userAgent = "Subforge-Go/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventTest         Event = "test"
)

// Payload carries event fields. Known keys: jobId, source, sourceLanguage,
// targetLanguage, subtitleUrl, elapsed, stage, kind, error.
type Payload map[string]any

// Service publishes workflow events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		failed:    cfg.Notifications.Failed,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	failed    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventJobCompleted:
		if !n.completed {
			return message{}, false
		}
		var b strings.Builder
		fmt.Fprintf(&b, "✅ Subtitles ready: %s", displaySource(payload.text("source")))
		if langs := languages(payload); langs != "" {
			fmt.Fprintf(&b, "\nLanguage: %s", langs)
		}
		if elapsed, ok := payload["elapsed"].(time.Duration); ok && elapsed > 0 {
			fmt.Fprintf(&b, "\nElapsed: %s", elapsed.Round(time.Second))
		}
		if link := payload.text("subtitleUrl"); link != "" {
			fmt.Fprintf(&b, "\n%s", link)
		}
		return message{
			title: "Subforge - Subtitles Ready",
			body:  b.String(),
			tags:  []string{"subforge", "job", "completed"},
		}, true
	case EventJobFailed:
		if !n.failed {
			return message{}, false
		}
		var b strings.Builder
		fmt.Fprintf(&b, "❌ Job %s failed", payload.text("jobId"))
		if stage := payload.text("stage"); stage != "" {
			fmt.Fprintf(&b, " during %s", stage)
		}
		reason := payload.text("error")
		if reason == "" {
			reason = "unknown"
		}
		fmt.Fprintf(&b, ": %s", reason)
		if source := payload.text("source"); source != "" {
			fmt.Fprintf(&b, "\nSource: %s", displaySource(source))
		}
		tags := []string{"subforge", "job", "failed"}
		if kind := payload.text("kind"); kind != "" {
			tags = append(tags, kind)
		}
		return message{
			title:    "Subforge - Job Failed",
			body:     b.String(),
			tags:     tags,
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Subforge - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"subforge", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

func languages(p Payload) string {
	source := p.text("sourceLanguage")
	target := p.text("targetLanguage")
	switch {
	case source == "":
		return target
	case target == "" || target == source:
		return source
	default:
		return source + " → " + target
	}
}

// displaySource shortens a path or URL to its final element.
func displaySource(source string) string {
	source = strings.TrimPrefix(strings.TrimSpace(source), "upload:")
	if source == "" {
		return "upload"
	}
	if u, err := url.Parse(source); err == nil && u.Host != "" {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			return base
		}
		return u.Host
	}
	return path.Base(strings.ReplaceAll(source, "\\", "/"))
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
