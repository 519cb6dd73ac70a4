package translate

import (
	"context"

	"subforge/internal/config"
	"subforge/internal/services"
	"subforge/internal/services/llm"
)

// LLMEngine translates through an OpenRouter-compatible chat endpoint.
type LLMEngine struct {
	client *llm.Client
}

// NewLLMEngine builds a single-attempt client from translation settings.
func NewLLMEngine(cfg config.Translation, opts ...llm.Option) *LLMEngine {
	opts = append([]llm.Option{llm.WithRetryMaxAttempts(1)}, opts...)
	return &LLMEngine{client: llm.NewClient(llm.Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		Referer:        cfg.Referer,
		Title:          cfg.Title,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}, opts...)}
}

func (e *LLMEngine) Name() string { return "llm" }

// Client exposes the underlying chat client for health checks.
func (e *LLMEngine) Client() *llm.Client { return e.client }

func (e *LLMEngine) Translate(ctx context.Context, text, source, target string) (string, error) {
	out, err := e.client.Complete(ctx, systemPrompt(source, target), text)
	if err != nil {
		if llm.IsTransient(err) {
			return "", services.FailTransient(services.KindTranslationEngineError, stageName, "llm", "chat completion failed", err)
		}
		return "", services.Fail(services.KindTranslationEngineError, stageName, "llm", "chat completion failed", err)
	}
	return out, nil
}
