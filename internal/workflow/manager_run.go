package workflow

import (
	"context"
	"errors"
	"time"

	"subforge/internal/logging"
	"subforge/internal/quota"
	"subforge/internal/services"
)

// Start marks jobs left in flight by a previous process as failed and
// launches the reaper loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.base = runCtx
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	reset, err := m.store.ResetInFlight(ctx, string(services.KindInternal), m.now().Add(m.cfg.Retention()))
	if err != nil {
		m.logger.Warn("failed to reset interrupted jobs; stale rows may show as running",
			logging.Error(err),
			logging.String(logging.FieldEventType, "reset_in_flight_failed"),
			logging.String(logging.FieldErrorHint, "check job database access"),
		)
	} else if reset > 0 {
		m.logger.Info("interrupted jobs marked failed",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "reset_in_flight"),
		)
	}

	go m.reapLoop(runCtx)
	return nil
}

// Stop cancels queued and running jobs and waits for them to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	for _, job := range m.active {
		job.cancel()
	}
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) reapLoop(ctx context.Context) {
	defer m.wg.Done()
	interval := m.cfg.ReapInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.ReapOnce(ctx); err != nil && ctx.Err() == nil {
				m.setLastError(err)
				m.logger.Warn("expired job reap failed; artifacts remain until the next pass",
					logging.Error(err),
					logging.String(logging.FieldEventType, "reap_failed"),
					logging.String(logging.FieldErrorHint, "check job database access"),
				)
			}
		}
	}
}

// ReapOnce deletes every expired job that is not in flight and prunes usage
// rows older than the quota window. It returns the number of jobs removed.
func (m *Manager) ReapOnce(ctx context.Context) (int, error) {
	now := m.now()
	expired, err := m.store.Expired(ctx, now)
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, job := range expired {
		if m.IsActive(job.ID) {
			continue
		}
		if err := m.purge(ctx, job.ID, job.Workspace); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if _, err := m.store.PruneUsage(ctx, now.Add(-quota.Window)); err != nil {
		errs = append(errs, err)
	}
	if removed > 0 {
		m.logger.Info("expired jobs removed",
			logging.Int("count", removed),
			logging.String(logging.FieldEventType, "jobs_reaped"),
		)
	}
	return removed, errors.Join(errs...)
}
