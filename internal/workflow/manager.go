package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"vidingest/internal/acquisition"
	"vidingest/internal/config"
	"vidingest/internal/logging"
	"vidingest/internal/pipeline"
	"vidingest/internal/queue"
)

// Runner executes one job.
type Runner interface {
	Run(ctx context.Context, job pipeline.Job, hooks pipeline.Hooks) (pipeline.Result, error)
}

// ArtifactCleaner removes the artifacts of a video.
type ArtifactCleaner interface {
	DeleteArtifacts(videoID string) (int, error)
}

// Manager coordinates queue processing with a fixed number of workers.
type Manager struct {
	store        *queue.Store
	runner       Runner
	cleaner      ArtifactCleaner
	sink         acquisition.ProgressSink
	logger       *slog.Logger
	pollInterval time.Duration
	workers      int
	heartbeat    *heartbeats

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	active   atomic.Int32
	lastErr  atomic.Pointer[string]
	lastItem atomic.Pointer[queue.Item]
}

// NewManager constructs a workflow manager. cleaner and sink may be nil.
func NewManager(cfg *config.Config, store *queue.Store, runner Runner, cleaner ArtifactCleaner, sink acquisition.ProgressSink, logger *slog.Logger) *Manager {
	logger = logging.NewComponentLogger(logger, "workflow")
	workers := cfg.Workflow.MaxConcurrent
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		store:        store,
		runner:       runner,
		cleaner:      cleaner,
		sink:         sink,
		logger:       logger,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		workers:      workers,
		heartbeat: newHeartbeats(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}
}

// WithPollInterval overrides the idle poll interval; intended for tests.
func (m *Manager) WithPollInterval(d time.Duration) *Manager {
	if d > 0 {
		m.pollInterval = d
	}
	return m
}

// Start launches the workers. It fails if the manager is already running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if m.runner == nil {
		return errors.New("workflow runner not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Add(m.workers)
	for i := 0; i < m.workers; i++ {
		go m.runWorker(runCtx, i)
	}
	m.logger.Info("workflow started", logging.Int("workers", m.workers))
	return nil
}

// Stop cancels the workers and waits for in-flight items to wind down.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped")
}

func (m *Manager) runWorker(ctx context.Context, index int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.heartbeat.reclaim(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(logger, "reclaim stale processing failed", "heartbeat_reclaim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "stuck items may remain in progress"),
			)
		}

		item, err := m.store.NextPending(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			m.setLastError(err)
			logging.ErrorWithContext(logger, "failed to fetch next queue item", "queue_fetch_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			m.wait(ctx)
			continue
		}
		if item == nil {
			m.wait(ctx)
			continue
		}
		m.processItem(ctx, logger, item)
	}
}

func (m *Manager) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}
