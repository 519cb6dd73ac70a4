package translate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"subforge/internal/services"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiEngine translates with the Google GenAI SDK.
type GeminiEngine struct {
	models  contentGenerator
	model   string
	timeout time.Duration
}

// NewGeminiEngine creates a Gemini API client.
func NewGeminiEngine(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiEngine, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("translate: create genai client: %w", err)
	}
	return newGeminiEngine(client.Models, model, timeout), nil
}

func newGeminiEngine(models contentGenerator, model string, timeout time.Duration) *GeminiEngine {
	return &GeminiEngine{models: models, model: strings.TrimSpace(model), timeout: timeout}
}

func (e *GeminiEngine) Name() string { return "gemini" }

func (e *GeminiEngine) Translate(ctx context.Context, text, source, target string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr[float32](0.2),
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt(source, target)}}},
	}
	resp, err := e.models.GenerateContent(ctx, e.model, genai.Text(text), cfg)
	if err != nil {
		return "", services.Fail(services.KindTranslationEngineError, stageName, "gemini", "generate content failed", err)
	}
	var out strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil {
				out.WriteString(part.Text)
			}
		}
		if out.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(out.String()), nil
}
