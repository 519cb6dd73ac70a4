package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"subforge/internal/config"
	"subforge/internal/language"
	"subforge/internal/logging"
	"subforge/internal/services"
	"subforge/internal/toolexec"
	"subforge/internal/transcript"
)

const stageName = "transcribing"

// Request describes one transcription call.
type Request struct {
	AudioPath string
	// Language is an ISO code or "auto" to let the engine identify it.
	Language string
	// WorkDir receives any intermediate engine output.
	WorkDir string
}

// Result is the raw engine output before normalization.
type Result struct {
	Text     string
	Language string
	Segments []transcript.Segment
}

// Backend is a speech-to-text engine.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (Result, error)
}

// Adapter wraps a Backend with size limits and transcript normalization.
type Adapter struct {
	backend  Backend
	maxBytes int64
	logger   *slog.Logger
}

// NewAdapter wraps backend. maxBytes <= 0 disables the size ceiling.
func NewAdapter(backend Backend, maxBytes int64, logger *slog.Logger) *Adapter {
	return &Adapter{
		backend:  backend,
		maxBytes: maxBytes,
		logger:   logging.NewComponentLogger(logger, "transcribe"),
	}
}

// New builds the adapter selected by cfg.Transcription.Engine.
func New(cfg *config.Config, run toolexec.RunFunc, logger *slog.Logger) (*Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("transcribe: %w: nil config", services.ErrConfiguration)
	}
	switch cfg.Transcription.Engine {
	case "openai":
		backend := NewOpenAI(OpenAIConfig{
			BaseURL: cfg.Transcription.BaseURL,
			APIKey:  cfg.Transcription.APIKey,
			Model:   cfg.Transcription.Model,
			Timeout: time.Duration(cfg.Transcription.TimeoutSeconds) * time.Second,
		})
		return NewAdapter(backend, cfg.TranscriptionMaxBytes(), logger), nil
	case "whisperx":
		backend := NewWhisperX(WhisperXConfig{
			Model:  cfg.Transcription.WhisperXModel,
			Device: cfg.Transcription.WhisperXDevice,
		}, run)
		return NewAdapter(backend, 0, logger), nil
	default:
		return nil, fmt.Errorf("transcribe: %w: unsupported engine %q", services.ErrConfiguration, cfg.Transcription.Engine)
	}
}

// Engine returns the backend name.
func (a *Adapter) Engine() string {
	if a == nil || a.backend == nil {
		return ""
	}
	return a.backend.Name()
}

// Transcribe sends the audio at req.AudioPath to the engine and returns a
// normalized transcript whose SourceLanguage is the resolved language.
func (a *Adapter) Transcribe(ctx context.Context, req Request) (transcript.Transcript, error) {
	logger := logging.WithContext(ctx, a.logger)

	info, err := os.Stat(req.AudioPath)
	if err != nil {
		return transcript.Transcript{}, services.Fail(services.KindInternal, stageName, "stat audio", "extracted audio is missing", err)
	}
	if a.maxBytes > 0 && info.Size() > a.maxBytes {
		return transcript.Transcript{}, services.Fail(services.KindInputTooLarge, stageName, "check size",
			fmt.Sprintf("audio is %.1f MB, engine limit is %.1f MB", mb(info.Size()), mb(a.maxBytes)), nil)
	}

	requested := strings.TrimSpace(req.Language)
	if requested == "" {
		requested = language.Auto
	}
	if !language.IsAuto(requested) {
		normalized, err := language.Normalize(requested)
		if err != nil {
			return transcript.Transcript{}, services.Fail(services.KindInvalidSource, stageName, "language", fmt.Sprintf("unknown source language %q", req.Language), err)
		}
		requested = normalized
	}
	req.Language = requested

	start := time.Now()
	result, err := a.backend.Transcribe(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return transcript.Transcript{}, ctxErr
		}
		return transcript.Transcript{}, err
	}

	segments := transcript.Normalize(result.Segments)
	if err := transcript.Validate(segments); err != nil {
		return transcript.Transcript{}, services.Fail(services.KindInternal, stageName, "normalize", "segments violate ordering after normalization", err)
	}
	resolved := requested
	if language.IsAuto(resolved) {
		resolved = resolveDetected(result.Language)
	}
	fullText := strings.TrimSpace(result.Text)
	if fullText == "" {
		fullText = transcript.JoinText(segments)
	}

	logger.Info("transcription complete",
		logging.String(logging.FieldEventType, "transcription_complete"),
		logging.String("engine", a.backend.Name()),
		logging.String("language", resolved),
		logging.Int("segments", len(segments)),
		logging.Duration("elapsed", time.Since(start)),
	)
	if len(segments) == 0 {
		logging.WarnWithContext(logger, "engine returned no speech segments", "transcription_empty",
			logging.String(logging.FieldErrorHint, "check that the video contains audible speech"),
			logging.String(logging.FieldImpact, "subtitle file will contain no cues"),
		)
	}

	return transcript.Transcript{
		FullText:       fullText,
		Segments:       segments,
		SourceLanguage: resolved,
	}, nil
}

// resolveDetected maps an engine-reported language (code or English name) to
// its ISO 639-1 code, keeping the raw value when it is not recognized.
func resolveDetected(detected string) string {
	detected = strings.TrimSpace(detected)
	if code := language.ToISO2(detected); code != "" {
		return code
	}
	if detected == "" {
		return "und"
	}
	return strings.ToLower(detected)
}

func mb(size int64) float64 {
	return float64(size) / 1_048_576
}
