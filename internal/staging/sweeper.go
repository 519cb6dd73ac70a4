package staging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"subforge/internal/logging"
)

// Sweeper periodically removes stale workspaces.
type Sweeper struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	active   ActiveFunc
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper constructs a sweeper over dir. Workspaces older than maxAge are
// removed every interval.
func NewSweeper(dir string, maxAge, interval time.Duration, active ActiveFunc, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sweeper{
		dir:      dir,
		maxAge:   maxAge,
		interval: interval,
		active:   active,
		logger:   logging.NewComponentLogger(logger, "staging-sweeper"),
	}
}

// Start launches the sweep loop. An initial sweep runs immediately.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, s.done)
}

// Stop halts the loop and waits for an in-progress sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SweepOnce runs a single cleanup pass.
func (s *Sweeper) SweepOnce(ctx context.Context) CleanStaleResult {
	result := CleanStale(ctx, s.dir, s.maxAge, s.active, s.logger)
	if len(result.Removed) > 0 || len(result.Errors) > 0 {
		s.logger.Info("staging sweep finished",
			logging.Int("removed", len(result.Removed)),
			logging.Int("skipped", len(result.Skipped)),
			logging.Int("errors", len(result.Errors)),
			logging.String(logging.FieldEventType, "staging_sweep"),
		)
	}
	return result
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	interval := s.interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}
