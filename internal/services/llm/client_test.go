package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClientHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{
						"content": `{"ok":true}`,
					},
				},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{
						"content": "```json\n{\"ok\":true}\n```",
					},
				},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check to fail")
	}
}

func chatResponse(choice map[string]any) map[string]any {
	return map[string]any{"choices": []any{choice}}
}

func TestClientCompletePlainText(t *testing.T) {
	var captured chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.Header.Get("X-Title"); got != "Subforge" {
			t.Errorf("unexpected title header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(chatResponse(map[string]any{
			"message": map[string]any{"content": "  Hola mundo\n"},
		}))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model", Title: "Subforge"})
	out, err := client.Complete(context.Background(), "translate to Spanish", "Hello world")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if out != "Hola mundo" {
		t.Fatalf("unexpected output %q", out)
	}
	if captured.ResponseFormat != nil {
		t.Fatalf("plain completion must not request json, got %v", captured.ResponseFormat)
	}
	if len(captured.Messages) != 2 || captured.Messages[1].Content != "Hello world" {
		t.Fatalf("unexpected messages %+v", captured.Messages)
	}
}

func TestClientCompleteDeltaAndLegacyText(t *testing.T) {
	for name, choice := range map[string]map[string]any{
		"delta":  {"delta": map[string]any{"content": "Bonjour"}},
		"legacy": {"text": "Bonjour"},
	} {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(chatResponse(choice))
			}))
			defer server.Close()

			client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
			out, err := client.Complete(context.Background(), "system", "Hello")
			if err != nil {
				t.Fatalf("Complete returned error: %v", err)
			}
			if out != "Bonjour" {
				t.Fatalf("unexpected output %q", out)
			}
		})
	}
}

func TestClientEmptyContentHasSnippet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse(map[string]any{
			"finish_reason": "length",
			"message":       map[string]any{"content": ""},
		}))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"}, WithRetryMaxAttempts(1))
	_, err := client.Complete(context.Background(), "system", "Hello")
	if err == nil {
		t.Fatal("expected error for empty content")
	}
	if !strings.Contains(err.Error(), `finish_reason="length"`) || !strings.Contains(err.Error(), "response_snippet=") {
		t.Fatalf("error should describe the empty response, got %v", err)
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse(map[string]any{
			"message": map[string]any{"content": "Hallo"},
		}))
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	out, err := client.Complete(context.Background(), "system", "Hello")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if out != "Hallo" {
		t.Fatalf("unexpected output %q", out)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientSingleAttemptSurfacesStatus(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"}, WithRetryMaxAttempts(1))
	_, err := client.Complete(context.Background(), "system", "Hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
	code, ok := StatusCode(err)
	if !ok || code != http.StatusBadGateway {
		t.Fatalf("expected 502 status, got %d (%v)", code, ok)
	}
	if !IsTransient(err) {
		t.Fatal("502 should be transient")
	}
}

func TestDecodePayloadSanitizes(t *testing.T) {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := decodePayload("Sure! Here it is: {\"ok\": true} thanks", &out); err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	if !out.OK {
		t.Fatal("expected ok=true")
	}
	if err := decodePayload("   ", &out); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
