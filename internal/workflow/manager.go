package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"subforge/internal/artifacts"
	"subforge/internal/config"
	"subforge/internal/jobstore"
	"subforge/internal/logging"
	"subforge/internal/notifications"
	"subforge/internal/pipeline"
	"subforge/internal/quota"
)

var (
	// ErrNotRunning is returned by Submit before Start or after Stop.
	ErrNotRunning = errors.New("workflow manager is not running")
	// ErrQuotaExceeded marks a request refused by the quota policy.
	ErrQuotaExceeded = errors.New("daily job limit reached")
	// ErrJobFinished is returned when canceling a job that already ended.
	ErrJobFinished = errors.New("job already finished")
)

// QuotaError carries the decision that refused a request.
type QuotaError struct {
	UserID   string
	Decision quota.Decision
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s for user %q (limit %d)", ErrQuotaExceeded, e.UserID, e.Decision.Limit)
}

// Is matches ErrQuotaExceeded.
func (e *QuotaError) Is(target error) bool { return target == ErrQuotaExceeded }

// Manager coordinates job execution, persistence and cleanup.
type Manager struct {
	cfg       *config.Config
	store     *jobstore.Store
	runtime   *pipeline.Runtime
	artifacts artifacts.Store
	quota     quota.Policy
	notifier  notifications.Service
	logger    *slog.Logger
	bus       *eventBus
	slots     chan struct{}
	now       func() time.Time

	mu      sync.RWMutex
	running bool
	base    context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	active  map[string]*activeJob
	lastErr error
	lastJob string
}

type activeJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithQuota replaces the policy derived from configuration.
func WithQuota(policy quota.Policy) ManagerOption {
	return func(m *Manager) {
		if policy != nil {
			m.quota = policy
		}
	}
}

// WithNotifier replaces the ntfy service derived from configuration.
func WithNotifier(svc notifications.Service) ManagerOption {
	return func(m *Manager) {
		if svc != nil {
			m.notifier = svc
		}
	}
}

// WithClock overrides the time source used for expiry and reaping.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a workflow manager. The artifact store should be the
// same instance the runtime publishes through so purges reach every object.
func NewManager(cfg *config.Config, store *jobstore.Store, runtime *pipeline.Runtime, arts artifacts.Store, logger *slog.Logger, opts ...ManagerOption) (*Manager, error) {
	if cfg == nil || store == nil || runtime == nil || arts == nil {
		return nil, errors.New("workflow manager requires config, job store, runtime and artifact store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	limit := cfg.Pipeline.MaxConcurrentJobs
	if limit <= 0 {
		limit = 1
	}
	m := &Manager{
		cfg:       cfg,
		store:     store,
		runtime:   runtime,
		artifacts: arts,
		quota:     quota.New(cfg, store),
		notifier:  notifications.NewService(cfg),
		logger:    logging.NewComponentLogger(logger, "workflow"),
		bus:       newEventBus(),
		slots:     make(chan struct{}, limit),
		now:       time.Now,
		active:    make(map[string]*activeJob),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Runtime returns the pipeline runtime the manager drives.
func (m *Manager) Runtime() *pipeline.Runtime {
	return m.runtime
}

// Quota returns the active quota policy.
func (m *Manager) Quota() quota.Policy {
	return m.quota
}

// IsActive reports whether a job with this id is queued or running. The
// staging sweeper uses it to skip live workspaces.
func (m *Manager) IsActive(jobID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[jobID]
	return ok
}

func (m *Manager) track(jobID string, cancel context.CancelFunc) *activeJob {
	job := &activeJob{cancel: cancel, done: make(chan struct{})}
	m.mu.Lock()
	m.active[jobID] = job
	m.lastJob = jobID
	m.mu.Unlock()
	return job
}

func (m *Manager) untrack(jobID string, job *activeJob) {
	m.mu.Lock()
	if current, ok := m.active[jobID]; ok && current == job {
		delete(m.active, jobID)
	}
	m.mu.Unlock()
	close(job.done)
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
