package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"subforge/internal/services"
	"subforge/internal/transcript"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "whisper-1"
	defaultOpenAITimeout = 10 * time.Minute
	openAITranscribePath = "/audio/transcriptions"
	granularitySegment   = "segment"
	responseFormat       = "verbose_json"
)

// OpenAIConfig configures the OpenAI-compatible transcription backend.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAI calls an OpenAI-compatible /audio/transcriptions endpoint.
type OpenAI struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// OpenAIOption customizes the backend.
type OpenAIOption func(*OpenAI)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(o *OpenAI) {
		if client != nil {
			o.http = client
		}
	}
}

// NewOpenAI constructs the backend.
func NewOpenAI(cfg OpenAIConfig, opts ...OpenAIOption) *OpenAI {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOpenAITimeout
	}
	backend := &OpenAI{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   strings.TrimSpace(cfg.Model),
		http:    &http.Client{Timeout: timeout},
	}
	if backend.baseURL == "" {
		backend.baseURL = defaultOpenAIBaseURL
	}
	if backend.model == "" {
		backend.model = defaultOpenAIModel
	}
	for _, opt := range opts {
		opt(backend)
	}
	return backend
}

func (o *OpenAI) Name() string { return "openai" }

type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe uploads the audio as multipart form data and decodes the
// verbose_json response.
func (o *OpenAI) Transcribe(ctx context.Context, req Request) (Result, error) {
	if o.apiKey == "" {
		return Result{}, services.Fail(services.KindTranscriptionEngineError, stageName, "openai", "missing api key", services.ErrConfiguration)
	}
	file, err := os.Open(req.AudioPath)
	if err != nil {
		return Result{}, services.Fail(services.KindInternal, stageName, "openai", "open audio", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fields := [][2]string{
		{"model", o.model},
		{"response_format", responseFormat},
		{"timestamp_granularities[]", granularitySegment},
	}
	if lang := strings.TrimSpace(req.Language); lang != "" && lang != "auto" {
		fields = append(fields, [2]string{"language", lang})
	}
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return Result{}, services.Fail(services.KindInternal, stageName, "openai", "write "+field[0]+" field", err)
		}
	}
	part, err := writer.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return Result{}, services.Fail(services.KindInternal, stageName, "openai", "create file field", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return Result{}, services.Fail(services.KindInternal, stageName, "openai", "copy audio", err)
	}
	if err := writer.Close(); err != nil {
		return Result{}, services.Fail(services.KindInternal, stageName, "openai", "close multipart writer", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+openAITranscribePath, body)
	if err != nil {
		return Result{}, services.Fail(services.KindInternal, stageName, "openai", "build request", err)
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())
	request.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.http.Do(request)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, services.FailTransient(services.KindTranscriptionEngineError, stageName, "openai", "transcription request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, services.FailTransient(services.KindTranscriptionEngineError, stageName, "openai", "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, statusError(resp.StatusCode, payload)
	}

	var parsed verboseResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return Result{}, services.Fail(services.KindTranscriptionEngineError, stageName, "openai", "decode response", err)
	}
	segments := make([]transcript.Segment, 0, len(parsed.Segments))
	for i, span := range parsed.Segments {
		segments = append(segments, transcript.Segment{Index: i, Start: span.Start, End: span.End, Text: span.Text})
	}
	return Result{Text: parsed.Text, Language: parsed.Language, Segments: segments}, nil
}

func statusError(status int, payload []byte) error {
	msg := fmt.Sprintf("engine returned http %d: %s", status, snippet(payload))
	switch {
	case status == http.StatusRequestEntityTooLarge:
		return services.Fail(services.KindInputTooLarge, stageName, "openai", msg, nil)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= http.StatusInternalServerError:
		return services.FailTransient(services.KindTranscriptionEngineError, stageName, "openai", msg, nil)
	default:
		return services.Fail(services.KindTranscriptionEngineError, stageName, "openai", msg, nil)
	}
}

func snippet(payload []byte) string {
	text := strings.Join(strings.Fields(string(payload)), " ")
	const limit = 200
	if len(text) > limit {
		return text[:limit] + "..."
	}
	if text == "" {
		return "<empty>"
	}
	return text
}
