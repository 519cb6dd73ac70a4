package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"subforge/internal/artifacts"
	"subforge/internal/config"
	"subforge/internal/extract"
	"subforge/internal/logging"
	"subforge/internal/mux"
	"subforge/internal/telemetry"
	"subforge/internal/toolexec"
	"subforge/internal/transcribe"
	"subforge/internal/translate"
)

// ErrShutdown is returned by Acquire after Shutdown.
var ErrShutdown = errors.New("pipeline runtime is shut down")

// whisperxEnv lets current WhisperX checkpoints load under recent torch releases.
var whisperxEnv = []string{"TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1"}

// Runtime lazily builds the engines and orchestrator on first use and
// releases them on Shutdown.
type Runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	overrides func(*Components)
	orchOpts  []OrchestratorOption

	mu           sync.Mutex
	orchestrator *Orchestrator
	engines      EngineInfo
	closers      []io.Closer
	shutdown     bool
}

// EngineInfo names the backends a runtime selected.
type EngineInfo struct {
	Transcription string `json:"transcription"`
	Translation   string `json:"translation"`
	Storage       string `json:"storage"`
}

// RuntimeOption customizes a Runtime.
type RuntimeOption func(*Runtime)

// WithComponentOverrides lets callers replace individual components after the
// defaults are built.
func WithComponentOverrides(fn func(*Components)) RuntimeOption {
	return func(r *Runtime) { r.overrides = fn }
}

// WithOrchestratorOptions forwards options to the orchestrator.
func WithOrchestratorOptions(opts ...OrchestratorOption) RuntimeOption {
	return func(r *Runtime) { r.orchOpts = append(r.orchOpts, opts...) }
}

// NewRuntime returns an idle runtime. Nothing is built until Acquire.
func NewRuntime(cfg *config.Config, logger *slog.Logger, opts ...RuntimeOption) *Runtime {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runtime{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire returns the orchestrator, building it on the first call.
func (r *Runtime) Acquire(ctx context.Context) (*Orchestrator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return nil, ErrShutdown
	}
	if r.orchestrator != nil {
		return r.orchestrator, nil
	}
	orch, err := r.build(ctx)
	if err != nil {
		r.closeAll()
		return nil, err
	}
	r.orchestrator = orch
	r.logger.Info("pipeline runtime ready",
		logging.String(logging.FieldEventType, "runtime_ready"),
		logging.String("transcription_engine", r.engines.Transcription),
		logging.String("translation_engine", r.engines.Translation),
		logging.String("artifact_store", r.engines.Storage),
	)
	return orch, nil
}

// Ready reports whether Acquire has succeeded and Shutdown has not run.
func (r *Runtime) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orchestrator != nil && !r.shutdown
}

// Engines returns the selected backends. Empty until Acquire succeeds.
func (r *Runtime) Engines() EngineInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engines
}

// Artifacts returns the artifact store once built.
func (r *Runtime) Artifacts() artifacts.Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.orchestrator == nil {
		return nil
	}
	return r.orchestrator.components.Artifacts
}

// Shutdown releases engine resources. It is safe to call more than once.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return nil
	}
	r.shutdown = true
	r.orchestrator = nil
	done := make(chan error, 1)
	go func() { done <- r.closeAll() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) closeAll() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) build(ctx context.Context) (*Orchestrator, error) {
	cfg := r.cfg
	if cfg == nil {
		return nil, errors.New("pipeline runtime: nil config")
	}
	runner := toolexec.New(cfg.ToolLogDir(), r.logger)
	engineRunner := toolexec.New(cfg.ToolLogDir(), r.logger, whisperxEnv...)

	var comps Components
	if r.overrides != nil {
		r.overrides(&comps)
	}
	if comps.Extractor == nil {
		comps.Extractor = extract.New(cfg, runner.Run, r.logger)
	}
	if comps.Transcriber == nil {
		adapter, err := transcribe.New(cfg, engineRunner.Run, r.logger)
		if err != nil {
			return nil, fmt.Errorf("transcription engine: %w", err)
		}
		comps.Transcriber = adapter
	}
	if comps.Translator == nil {
		translator, err := translate.New(ctx, cfg, r.logger)
		if err != nil {
			return nil, fmt.Errorf("translation engine: %w", err)
		}
		comps.Translator = translator
	}
	if comps.Embedder == nil {
		comps.Embedder = mux.New(cfg, runner.Run, r.logger)
	}
	if comps.Artifacts == nil {
		store, err := artifacts.New(ctx, cfg, r.logger)
		if err != nil {
			return nil, fmt.Errorf("artifact store: %w", err)
		}
		comps.Artifacts = store
		if closer, ok := store.(io.Closer); ok {
			r.closers = append(r.closers, closer)
		}
	}

	r.engines = EngineInfo{
		Transcription: engineName(comps.Transcriber),
		Translation:   engineName(comps.Translator),
		Storage:       comps.Artifacts.Name(),
	}

	opts := append([]OrchestratorOption(nil), r.orchOpts...)
	if inst, err := telemetry.NewInstruments(nil); err == nil {
		opts = append([]OrchestratorOption{WithInstruments(inst)}, opts...)
	} else {
		r.logger.Warn("metric instruments unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "metrics_unavailable"),
			logging.String(logging.FieldImpact, "job and stage metrics not recorded"),
		)
	}
	return NewOrchestrator(cfg, comps, r.logger, opts...)
}

func engineName(component any) string {
	if named, ok := component.(interface{ Engine() string }); ok {
		return named.Engine()
	}
	return "custom"
}
