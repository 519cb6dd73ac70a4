package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"subforge/internal/api"
	"subforge/internal/artifacts"
	"subforge/internal/config"
	"subforge/internal/jobstore"
	"subforge/internal/logging"
	"subforge/internal/pipeline"
	"subforge/internal/preflight"
	"subforge/internal/staging"
	"subforge/internal/telemetry"
	"subforge/internal/workflow"
)

const shutdownTimeout = 30 * time.Second

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *jobstore.Store
	artifacts artifacts.Store
	runtime   *pipeline.Runtime
	workflow  *workflow.Manager
	sweeper   *staging.Sweeper
	server    *api.Server
	telemetry telemetry.ShutdownFunc

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Address      string
	Workflow     workflow.StatusSummary
	DatabasePath string
	LockFilePath string
}

type options struct {
	overrides func(*pipeline.Components)
	manager   []workflow.ManagerOption
}

// Option customizes daemon construction.
type Option func(*options)

// WithComponentOverrides replaces pipeline components after the artifact
// store has been attached.
func WithComponentOverrides(fn func(*pipeline.Components)) Option {
	return func(o *options) { o.overrides = fn }
}

// WithManagerOptions forwards options to the workflow manager.
func WithManagerOptions(opts ...workflow.ManagerOption) Option {
	return func(o *options) { o.manager = append(o.manager, opts...) }
}

// New constructs a daemon with initialized dependencies. Nothing listens or
// runs until Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	fail := func(err error) (*Daemon, error) {
		_ = d.release(context.Background())
		return nil, err
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	d.telemetry = shutdownTelemetry

	if d.store, err = jobstore.Open(cfg); err != nil {
		return fail(fmt.Errorf("open job store: %w", err))
	}
	if d.artifacts, err = artifacts.New(ctx, cfg, logger); err != nil {
		return fail(fmt.Errorf("artifact store: %w", err))
	}

	arts := d.artifacts
	d.runtime = pipeline.NewRuntime(cfg, logger, pipeline.WithComponentOverrides(func(c *pipeline.Components) {
		c.Artifacts = arts
		if o.overrides != nil {
			o.overrides(c)
		}
	}))

	if d.workflow, err = workflow.NewManager(cfg, d.store, d.runtime, arts, logger, o.manager...); err != nil {
		return fail(err)
	}
	d.sweeper = staging.NewSweeper(cfg.Paths.StagingDir, cfg.Retention(), cfg.SweepInterval(), d.workflow.IsActive, logger)

	serverOpts := []api.Option{api.WithReadiness(d.Readiness)}
	if local, ok := arts.(*artifacts.Local); ok {
		serverOpts = append(serverOpts, api.WithLocalArtifacts(local))
	}
	if d.server, err = api.New(cfg, d.workflow, logger, serverOpts...); err != nil {
		return fail(err)
	}
	return d, nil
}

// Start acquires the daemon lock, then launches the workflow manager, the
// staging sweeper, and the API listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another subforged instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.server.Start(runCtx); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start api: %w", err)
	}
	d.sweeper.Start(runCtx)
	d.cancel = cancel

	if _, err := d.runtime.Acquire(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "pipeline warm-up failed; engines will be built on first job", "runtime_warmup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run subforge doctor to check engine credentials"),
			logging.String(logging.FieldImpact, "jobs fail until the engine configuration is fixed"),
		)
	}
	if removed := logging.CleanupOldLogs(d.logger, d.cfg.Logging.RetentionDays, logging.DefaultRetentionTargets(d.cfg.Paths.LogDir)...); removed > 0 {
		d.logger.Info("old logs removed", logging.Int("count", removed))
	}

	d.running.Store(true)
	d.logger.Info("subforged started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("address", d.server.Addr()),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.server.Shutdown(ctx); err != nil {
		d.logger.Warn("api shutdown incomplete", logging.Error(err))
	}
	d.sweeper.Stop()
	d.workflow.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("subforged stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the resources it owns.
func (d *Daemon) Close() error {
	d.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return d.release(ctx)
}

func (d *Daemon) release(ctx context.Context) error {
	var errs []error
	if d.runtime != nil {
		errs = append(errs, d.runtime.Shutdown(ctx))
	}
	if closer, ok := d.artifacts.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
		d.store = nil
	}
	if d.telemetry != nil {
		errs = append(errs, d.telemetry(ctx))
		d.telemetry = nil
	}
	return errors.Join(errs...)
}

// Manager exposes the workflow manager.
func (d *Daemon) Manager() *workflow.Manager {
	return d.workflow
}

// Addr returns the API listen address once started.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}

// Readiness converts the local preflight checks into API dependency entries.
func (d *Daemon) Readiness(ctx context.Context) []api.DependencyStatus {
	results := preflight.RunLocal(d.cfg)
	out := make([]api.DependencyStatus, 0, len(results)+1)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	store := api.DependencyStatus{Name: "Job store", Ready: true, Detail: d.store.Path()}
	if err := d.store.Ping(pingCtx); err != nil {
		store.Ready = false
		store.Detail = err.Error()
	}
	out = append(out, store)
	for _, r := range results {
		out = append(out, api.DependencyStatus{
			Name:     r.Name,
			Ready:    r.Passed,
			Optional: r.Optional,
			Detail:   r.Detail,
		})
	}
	return out
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Address:      d.server.Addr(),
		Workflow:     d.workflow.Status(ctx),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
}
