package workflow

import (
	"context"

	"subforge/internal/jobstore"
	"subforge/internal/logging"
	"subforge/internal/pipeline"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running      bool                    `json:"running"`
	RuntimeReady bool                    `json:"runtimeReady"`
	Engines      pipeline.EngineInfo     `json:"engines"`
	Storage      string                  `json:"storage"`
	ActiveJobs   []string                `json:"activeJobs"`
	Capacity     int                     `json:"capacity"`
	LastJob      string                  `json:"lastJob,omitempty"`
	LastError    string                  `json:"lastError,omitempty"`
	JobStats     map[jobstore.Status]int `json:"jobStats"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:    m.running,
		Capacity:   cap(m.slots),
		LastJob:    m.lastJob,
		ActiveJobs: make([]string, 0, len(m.active)),
	}
	for id := range m.active {
		summary.ActiveJobs = append(summary.ActiveJobs, id)
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	summary.RuntimeReady = m.runtime.Ready()
	summary.Engines = m.runtime.Engines()
	summary.Storage = m.artifacts.Name()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read job stats", logging.Error(err))
	}
	summary.JobStats = stats
	return summary
}
