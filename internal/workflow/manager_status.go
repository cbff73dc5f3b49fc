package workflow

import (
	"context"

	"vidingest/internal/logging"
	"vidingest/internal/queue"
)

// StatusSummary is a point-in-time view of the workers and the queue.
type StatusSummary struct {
	Running     bool
	Workers     int
	ActiveItems int
	LastError   string
	LastItem    *queue.Item
	QueueStats  map[queue.Status]int
}

// Status reports worker activity along with per-status queue counts. A
// queue read failure is logged and leaves QueueStats nil.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()

	summary := StatusSummary{
		Running:     running,
		Workers:     m.workers,
		ActiveItems: int(m.active.Load()),
	}
	if msg := m.lastErr.Load(); msg != nil {
		summary.LastError = *msg
	}
	if item := m.lastItem.Load(); item != nil {
		clone := *item
		summary.LastItem = &clone
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	return summary
}

func (m *Manager) setLastError(err error) {
	msg := err.Error()
	m.lastErr.Store(&msg)
}

func (m *Manager) setLastItem(item queue.Item) {
	m.lastItem.Store(&item)
}
