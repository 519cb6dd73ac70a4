package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"subforge/internal/config"
	"subforge/internal/language"
	"subforge/internal/logging"
	"subforge/internal/services"
	"subforge/internal/transcript"
)

const stageName = "translating"

// Engine translates one piece of text.
type Engine interface {
	Name() string
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Translator applies the segment alignment and fallback policy over an Engine.
type Translator struct {
	engine  Engine
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewTranslator wraps engine. A nil engine makes every call a pass-through; a
// nil limiter disables pacing.
func NewTranslator(engine Engine, limiter *rate.Limiter, logger *slog.Logger) *Translator {
	return &Translator{
		engine:  engine,
		limiter: limiter,
		logger:  logging.NewComponentLogger(logger, "translate"),
	}
}

// New builds the translator selected by cfg.Translation.Engine.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Translator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("translate: %w: nil config", services.ErrConfiguration)
	}
	limiter := newLimiter(cfg.Translation.RequestsPerSecond, cfg.Translation.Burst)
	timeout := time.Duration(cfg.Translation.TimeoutSeconds) * time.Second
	switch cfg.Translation.Engine {
	case "none":
		return NewTranslator(nil, nil, logger), nil
	case "llm":
		return NewTranslator(NewLLMEngine(cfg.Translation), limiter, logger), nil
	case "gemini":
		engine, err := NewGeminiEngine(ctx, cfg.Translation.APIKey, cfg.Translation.Model, timeout)
		if err != nil {
			return nil, err
		}
		return NewTranslator(engine, limiter, logger), nil
	default:
		return nil, fmt.Errorf("translate: %w: unsupported engine %q", services.ErrConfiguration, cfg.Translation.Engine)
	}
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Engine returns the configured engine name, or "none".
func (t *Translator) Engine() string {
	if t == nil || t.engine == nil {
		return "none"
	}
	return t.engine.Name()
}

// ShouldSkip reports whether translating from source to target is a no-op.
func (t *Translator) ShouldSkip(source, target string) bool {
	if t == nil || t.engine == nil {
		return true
	}
	if strings.TrimSpace(target) == "" || language.IsAuto(target) {
		return true
	}
	return language.Same(source, target)
}

// Translate returns tr rendered into target. skipped is true when the input is
// returned unchanged because no translation was needed or configured. The
// returned error is only non-nil for an unknown target language or context
// cancellation; engine failures degrade per segment.
func (t *Translator) Translate(ctx context.Context, tr transcript.Transcript, target string) (transcript.Translated, bool, error) {
	if t.ShouldSkip(tr.SourceLanguage, target) {
		return passThrough(tr), true, nil
	}
	targetCode, err := language.Normalize(target)
	if err != nil {
		return transcript.Translated{}, false, services.Fail(services.KindInvalidSource, stageName, "language", fmt.Sprintf("unknown target language %q", target), err)
	}
	source := tr.SourceLanguage
	logger := logging.WithContext(ctx, t.logger)
	start := time.Now()

	out := transcript.Translated{
		Segments:       make([]transcript.Segment, len(tr.Segments)),
		TargetLanguage: targetCode,
	}
	for i, seg := range tr.Segments {
		out.Segments[i] = seg
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		translated, err := t.call(ctx, seg.Text, source, targetCode)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return transcript.Translated{}, false, ctxErr
			}
			out.FallbackSegments = append(out.FallbackSegments, i)
			logging.WarnWithContext(logger, "segment translation failed; keeping source text", "segment_translation_fallback",
				logging.Int("segment", i),
				logging.String(logging.FieldErrorKind, string(services.KindTranslationEngineError)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check translation engine quota and credentials"),
				logging.String(logging.FieldImpact, "one cue stays in the source language"),
			)
			continue
		}
		out.Segments[i].Text = translated
	}

	full := strings.TrimSpace(tr.FullText)
	if full != "" {
		translated, err := t.call(ctx, full, source, targetCode)
		switch {
		case err == nil:
			out.FullText = translated
		case ctx.Err() != nil:
			return transcript.Translated{}, false, ctx.Err()
		default:
			logging.WarnWithContext(logger, "full-text translation failed; joining translated segments", "fulltext_translation_fallback",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check translation engine quota and credentials"),
				logging.String(logging.FieldImpact, "display translation is assembled from cue text"),
			)
		}
	}
	if out.FullText == "" {
		out.FullText = transcript.JoinText(out.Segments)
	}

	logger.Info("translation complete",
		logging.String(logging.FieldEventType, "translation_complete"),
		logging.String("engine", t.engine.Name()),
		logging.String("source_language", source),
		logging.String("target_language", targetCode),
		logging.Int("segments", len(out.Segments)),
		logging.Int("fallback_segments", len(out.FallbackSegments)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return out, false, nil
}

func (t *Translator) call(ctx context.Context, text, source, target string) (string, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", services.Fail(services.KindTranslationEngineError, stageName, "rate limit", "limiter wait failed", err)
		}
	}
	translated, err := t.engine.Translate(ctx, text, source, target)
	if err != nil {
		return "", err
	}
	translated = strings.TrimSpace(translated)
	if translated == "" {
		return "", services.Fail(services.KindTranslationEngineError, stageName, t.engine.Name(), "engine returned empty text", nil)
	}
	return translated, nil
}

func passThrough(tr transcript.Transcript) transcript.Translated {
	segments := make([]transcript.Segment, len(tr.Segments))
	copy(segments, tr.Segments)
	return transcript.Translated{
		FullText:       tr.FullText,
		Segments:       segments,
		TargetLanguage: tr.SourceLanguage,
	}
}

// systemPrompt instructs an engine to return only the translated text.
func systemPrompt(source, target string) string {
	from := "the detected source language"
	if code := language.ToISO2(source); code != "" {
		from = language.DisplayName(code)
	}
	return fmt.Sprintf(
		"You translate video subtitles from %s to %s. Reply with the translation only: no quotes, notes, or explanations. Preserve line breaks. If the text is already in %s, return it unchanged.",
		from, language.DisplayName(target), language.DisplayName(target),
	)
}
