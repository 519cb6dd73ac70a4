package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"subforge/internal/artifacts"
	"subforge/internal/config"
	"subforge/internal/extract"
	"subforge/internal/language"
	"subforge/internal/logging"
	"subforge/internal/mux"
	"subforge/internal/services"
	"subforge/internal/staging"
	"subforge/internal/subtitles"
	"subforge/internal/telemetry"
	"subforge/internal/transcribe"
	"subforge/internal/transcript"
)

const (
	subtitleFileName = "subtitles.srt"
	videoFileName    = "subtitled.mp4"
	cleanupTimeout   = 30 * time.Second
)

// Extractor resolves a source into a local input and extracts its audio.
type Extractor interface {
	Resolve(ctx context.Context, src extract.Source, dir string) (extract.Input, error)
	Extract(ctx context.Context, input extract.Input, dir string) (extract.Audio, error)
}

// Transcriber turns audio into a time-coded transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (transcript.Transcript, error)
}

// Translator renders a transcript into a target language.
type Translator interface {
	ShouldSkip(source, target string) bool
	Translate(ctx context.Context, tr transcript.Transcript, target string) (transcript.Translated, bool, error)
}

// Embedder writes the subtitled video.
type Embedder interface {
	Embed(ctx context.Context, req mux.Request) (mux.Result, error)
}

// Components are the stage implementations an Orchestrator drives.
type Components struct {
	Extractor   Extractor
	Transcriber Transcriber
	Translator  Translator
	Embedder    Embedder
	Artifacts   artifacts.Store
}

func (c Components) validate() error {
	var missing []string
	if c.Extractor == nil {
		missing = append(missing, "extractor")
	}
	if c.Transcriber == nil {
		missing = append(missing, "transcriber")
	}
	if c.Translator == nil {
		missing = append(missing, "translator")
	}
	if c.Embedder == nil {
		missing = append(missing, "embedder")
	}
	if c.Artifacts == nil {
		missing = append(missing, "artifact store")
	}
	if len(missing) > 0 {
		return fmt.Errorf("pipeline: missing components: %s: %w", strings.Join(missing, ", "), services.ErrConfiguration)
	}
	return nil
}

// Orchestrator runs jobs through every stage.
type Orchestrator struct {
	components          Components
	stagingDir          string
	jobTimeout          time.Duration
	retainIntermediates bool
	defaultMode         mux.Mode
	defaultSource       string
	instruments         *telemetry.Instruments
	tracer              trace.Tracer
	logger              *slog.Logger
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithInstruments records job and stage metrics.
func WithInstruments(inst *telemetry.Instruments) OrchestratorOption {
	return func(o *Orchestrator) { o.instruments = inst }
}

// WithTracer overrides the tracer used for job and stage spans.
func WithTracer(tracer trace.Tracer) OrchestratorOption {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// NewOrchestrator wires components with pipeline settings from cfg.
func NewOrchestrator(cfg *config.Config, components Components, logger *slog.Logger, opts ...OrchestratorOption) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pipeline: nil config: %w", services.ErrConfiguration)
	}
	if err := components.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	mode, err := mux.ParseMode(cfg.Pipeline.Mode)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w: %w", services.ErrConfiguration, err)
	}
	o := &Orchestrator{
		components:          components,
		stagingDir:          cfg.Paths.StagingDir,
		jobTimeout:          cfg.JobTimeout(),
		retainIntermediates: cfg.Pipeline.RetainIntermediates,
		defaultMode:         mode,
		defaultSource:       cfg.Pipeline.DefaultSourceLanguage,
		tracer:              telemetry.Tracer(),
		logger:              logging.NewComponentLogger(logger, "pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// plan is a validated request.
type plan struct {
	source extract.Source
	from   string
	to     string
	mode   mux.Mode
}

func (o *Orchestrator) plan(req Request) (plan, error) {
	if err := req.Source.Validate(); err != nil {
		return plan{}, err
	}
	sourceLang := req.SourceLanguage
	if strings.TrimSpace(sourceLang) == "" {
		sourceLang = o.defaultSource
	}
	from, err := language.Normalize(sourceLang)
	if err != nil {
		return plan{}, services.Fail(services.KindInvalidSource, string(StageIdle), "validate", fmt.Sprintf("unknown source language %q", req.SourceLanguage), err)
	}
	if strings.TrimSpace(req.TargetLanguage) == "" {
		return plan{}, services.Fail(services.KindInvalidSource, string(StageIdle), "validate", "target language is required", nil)
	}
	to, err := language.Normalize(req.TargetLanguage)
	if err != nil {
		return plan{}, services.Fail(services.KindInvalidSource, string(StageIdle), "validate", fmt.Sprintf("unknown target language %q", req.TargetLanguage), err)
	}
	mode := req.Mode
	if mode == "" {
		mode = o.defaultMode
	}
	if mode != mux.ModeBurn && mode != mux.ModeSoft {
		return plan{}, services.Fail(services.KindInvalidSource, string(StageIdle), "validate", fmt.Sprintf("unsupported subtitle mode %q", mode), nil)
	}
	return plan{source: req.Source, from: from, to: to, mode: mode}, nil
}

// Run executes one job to completion or failure. On failure the workspace and
// anything already published are deleted and the returned error is a
// *services.Error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		jobID = uuid.NewString()
	}
	job := &Job{ID: jobID, Stage: StageIdle, StartedAt: time.Now()}
	progress := newTracker(jobID, req.Observer)

	ctx = services.WithJobID(ctx, jobID)
	if req.UserID != "" {
		ctx = services.WithUserID(ctx, req.UserID)
	}

	p, err := o.plan(req)
	if err != nil {
		return Result{}, o.fail(ctx, job, progress, err)
	}

	if o.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.jobTimeout)
		defer cancel()
	}
	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.String("job.source", p.source.Describe()),
		attribute.String("job.source_language", p.from),
		attribute.String("job.target_language", p.to),
		attribute.String("job.mode", string(p.mode)),
	))
	defer span.End()

	o.instruments.JobStarted(ctx, string(p.mode))
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("source", p.source.Describe()),
		logging.String("source_language", p.from),
		logging.String("target_language", p.to),
		logging.String("mode", string(p.mode)),
	)

	job.Workspace = filepath.Join(o.stagingDir, jobID)
	if err := os.MkdirAll(job.Workspace, 0o755); err != nil {
		err = services.Fail(services.KindInternal, string(StageIdle), "workspace", "could not create job workspace", err)
		o.recordSpanError(span, err)
		return Result{}, o.fail(ctx, job, progress, err)
	}

	result, err := o.execute(ctx, job, progress, p)
	if err != nil {
		err = o.fail(ctx, job, progress, err)
		o.recordSpanError(span, err)
		return Result{}, err
	}

	o.releaseIntermediates(ctx, job)
	job.Stage = StageCompleted
	progress.emit(StageCompleted, PercentCompleted, "")
	result.Elapsed = time.Since(job.StartedAt)
	o.instruments.JobCompleted(ctx, string(p.mode))
	span.SetStatus(codes.Ok, "")
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("video_url", result.VideoURL),
		logging.String("subtitle_url", result.SubtitleURL),
		logging.Int("segments", result.SegmentCount),
		logging.Bool("translated", result.Translated),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, job *Job, progress *tracker, p plan) (Result, error) {
	c := o.components
	result := Result{JobID: job.ID, Mode: p.mode, Workspace: job.Workspace}

	var (
		input extract.Input
		audio extract.Audio
	)
	err := o.runStage(ctx, job, progress, StageExtracting, PercentExtracting, "", func(ctx context.Context) error {
		var err error
		input, err = c.Extractor.Resolve(ctx, p.source, job.Workspace)
		if err != nil {
			return err
		}
		if input.Owned {
			job.track(input.Path)
		}
		audio, err = c.Extractor.Extract(ctx, input, job.Workspace)
		if err != nil {
			return err
		}
		job.track(audio.Path)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	var source transcript.Transcript
	err = o.runStage(ctx, job, progress, StageTranscribing, PercentTranscribing, "", func(ctx context.Context) error {
		var err error
		source, err = c.Transcriber.Transcribe(ctx, transcribe.Request{
			AudioPath: audio.Path,
			Language:  p.from,
			WorkDir:   job.Workspace,
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}
	progress.emit(StageTranscribing, PercentTranscribed, fmt.Sprintf("Transcribed %d segments", len(source.Segments)))
	result.Transcription = source.FullText
	result.SourceLanguage = source.SourceLanguage
	result.SegmentCount = len(source.Segments)

	rendered := passThrough(source)
	skipped := c.Translator.ShouldSkip(source.SourceLanguage, p.to)
	if !skipped {
		err = o.runStage(ctx, job, progress, StageTranslating, PercentTranslating, "", func(ctx context.Context) error {
			var err error
			rendered, skipped, err = c.Translator.Translate(ctx, source, p.to)
			return err
		})
		if err != nil {
			return Result{}, err
		}
	}
	result.Translated = !skipped
	result.TargetLanguage = p.to
	if !skipped {
		result.Translation = rendered.FullText
		result.FallbackSegments = rendered.FallbackSegments
	} else {
		result.TargetLanguage = source.SourceLanguage
	}

	subtitlePath := filepath.Join(job.Workspace, subtitleFileName)
	err = o.runStage(ctx, job, progress, StageFormatting, PercentFormatting, "", func(ctx context.Context) error {
		cues, err := subtitles.Format(rendered.Segments)
		if err != nil {
			return services.Fail(services.KindFormattingFailed, string(StageFormatting), "format", "segments could not be rendered as SRT", err)
		}
		if err := cues.WriteFile(subtitlePath); err != nil {
			return services.Fail(services.KindFormattingFailed, string(StageFormatting), "write", "subtitle file could not be written", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	result.SubtitlePath = subtitlePath

	videoPath := filepath.Join(job.Workspace, videoFileName)
	err = o.runStage(ctx, job, progress, StageMuxing, PercentMuxing, "", func(ctx context.Context) error {
		_, err := c.Embedder.Embed(ctx, mux.Request{
			VideoPath:    input.Path,
			SubtitlePath: subtitlePath,
			OutputPath:   videoPath,
			Mode:         p.mode,
			Language:     result.TargetLanguage,
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}
	result.VideoPath = videoPath

	err = o.runStage(ctx, job, progress, StagePublishing, PercentPublishing, "", func(ctx context.Context) error {
		var err error
		result.VideoURL, err = c.Artifacts.Publish(ctx, job.ID, videoPath, videoFileName, artifacts.ContentTypeFor(videoFileName))
		if err != nil {
			return err
		}
		result.SubtitleURL, err = c.Artifacts.Publish(ctx, job.ID, subtitlePath, subtitleFileName, artifacts.ContentTypeFor(subtitleFileName))
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// runStage moves the job into stage, runs fn under a stage span and records
// its duration.
func (o *Orchestrator) runStage(ctx context.Context, job *Job, progress *tracker, stage Stage, percent float64, message string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job.Stage = stage
	progress.emit(stage, percent, message)
	ctx = services.WithStage(ctx, string(stage))
	ctx, span := o.tracer.Start(ctx, "pipeline."+string(stage))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	o.instruments.RecordStage(ctx, string(stage), elapsed.Seconds())
	logging.WithContext(ctx, o.logger).Debug("stage finished",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", elapsed),
		logging.Bool("ok", err == nil),
	)
	if err != nil {
		o.recordSpanError(span, err)
	}
	return err
}

// fail classifies err, deletes everything the job produced and reports the
// failure to the observer.
func (o *Orchestrator) fail(ctx context.Context, job *Job, progress *tracker, err error) error {
	classified := classify(ctx, job.Stage, err)
	failedStage := classified.Stage
	job.Stage = StageFailed

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	logger := logging.WithContext(ctx, o.logger)
	if job.Workspace != "" {
		if removeErr := o.components.Artifacts.Remove(cleanupCtx, job.ID); removeErr != nil {
			logging.WarnWithContext(logger, "failed to remove published artifacts", "artifact_cleanup_failed",
				logging.Error(removeErr),
				logging.String(logging.FieldImpact, "published objects remain until the bucket lifecycle removes them"),
				logging.String(logging.FieldErrorHint, "delete the job prefix from the artifact store"),
			)
		}
		if removeErr := staging.RemoveWorkspace(job.Workspace); removeErr != nil {
			logging.WarnWithContext(logger, "failed to remove job workspace", "workspace_cleanup_failed",
				logging.String("workspace", job.Workspace),
				logging.Error(removeErr),
				logging.String(logging.FieldImpact, "disk space held until the staging sweep"),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
			)
		}
	}
	job.TempArtifacts = nil

	o.instruments.JobFailed(ctx, string(classified.Kind), failedStage)
	progress.fail(string(classified.Kind), classified.Message)
	logging.ErrorWithContext(logger, "job failed", "job_failed",
		logging.String(logging.FieldErrorKind, string(classified.Kind)),
		logging.String("failed_stage", failedStage),
		logging.String(logging.FieldErrorHint, classified.Kind.Hint()),
		logging.Error(classified),
	)
	return classified
}

// classify returns err as a *services.Error. Expired or canceled job contexts
// take precedence over whatever the stage reported.
func classify(ctx context.Context, stage Stage, err error) *services.Error {
	stageName := string(stage)
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return services.Fail(services.KindTimeout, stageName, "run", "job exceeded its time limit", err)
	case errors.Is(ctxErr, context.Canceled):
		return services.Fail(services.KindCanceled, stageName, "run", "job was canceled", err)
	}
	var existing *services.Error
	if errors.As(err, &existing) {
		if existing.Stage == "" {
			existing.Stage = stageName
		}
		return existing
	}
	kind := services.KindOf(err)
	message := "unexpected failure"
	switch kind {
	case services.KindTimeout:
		message = "job exceeded its time limit"
	case services.KindCanceled:
		message = "job was canceled"
	}
	return services.Fail(kind, stageName, "run", message, err)
}

func (o *Orchestrator) releaseIntermediates(ctx context.Context, job *Job) {
	if o.retainIntermediates {
		return
	}
	logger := logging.WithContext(ctx, o.logger)
	for _, path := range job.TempArtifacts {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Debug("intermediate cleanup failed", logging.String("path", path), logging.Error(err))
		}
	}
	job.TempArtifacts = nil
}

func (o *Orchestrator) recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(services.KindOf(err)))
}

// Validate checks req the same way Run does without starting a job.
func (o *Orchestrator) Validate(req Request) error {
	_, err := o.plan(req)
	return err
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
