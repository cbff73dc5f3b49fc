package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"vidingest/internal/config"
	"vidingest/internal/logging"
	"vidingest/internal/queue"
	"vidingest/internal/workflow"
)

// ErrAlreadyRunning is returned when another process holds the daemon lock.
var ErrAlreadyRunning = errors.New("another vidingest daemon instance is already running")

// Sweeper periodically removes aged artifacts until ctx ends.
type Sweeper interface {
	Sweep(ctx context.Context, interval time.Duration, maxAgeHours float64)
}

// Daemon owns the queue for one process: it holds the lock file, runs the
// workflow workers and the artifact sweeper, and settles queue state on
// start and stop.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	sweeper  Sweeper
	lock     *flock.Flock

	mu     sync.Mutex
	cancel context.CancelFunc
	bg     sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
}

// New wires a daemon. sweeper may be nil to disable age-based cleanup.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, sweeper Sweeper) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		sweeper:  sweeper,
		lock:     flock.New(cfg.LockPath()),
	}, nil
}

// Start takes the lock, requeues items a crashed predecessor left in
// flight, and launches the workers and sweeper.
func (d *Daemon) Start(ctx context.Context) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return errors.New("daemon already running")
	}

	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", d.lock.Path(), err)
	}
	if !locked {
		return ErrAlreadyRunning
	}
	defer func() {
		if err != nil {
			_ = d.lock.Unlock()
		}
	}()

	reset, err := d.store.ResetStuckProcessing(ctx)
	if err != nil {
		return fmt.Errorf("reset interrupted items: %w", err)
	}
	if reset > 0 {
		logging.WarnWithContext(d.logger, "requeued items interrupted by a previous run", "interrupted_items_requeued",
			logging.Int64("count", reset),
			logging.String(logging.FieldErrorHint, "a previous daemon exited without shutting down"),
			logging.String(logging.FieldImpact, "requeued items restart from the beginning"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}
	if d.sweeper != nil {
		d.bg.Go(func() {
			d.sweeper.Sweep(runCtx, d.cfg.SweepInterval(), d.cfg.Storage.MaxAgeHours)
		})
	}
	d.cancel = cancel
	d.logger.Info("vidingest daemon started", logging.String("lock", d.lock.Path()))
	return nil
}

// Stop halts the workers and sweeper, fails items still in flight with
// queue.DaemonStopReason, and releases the lock. It is safe to call more
// than once.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel == nil {
		return
	}
	d.cancel()
	d.cancel = nil
	d.workflow.Stop()
	d.bg.Wait()

	if failed, err := d.store.FailActive(context.Background(), queue.DaemonStopReason); err != nil {
		d.logger.Warn("failed to mark in-flight items", logging.Error(err))
	} else if failed > 0 {
		d.logger.Info("marked in-flight items failed", logging.Int64("count", failed))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("vidingest daemon stopped")
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	running := d.cancel != nil
	d.mu.Unlock()
	return Status{
		Running:      running,
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lock.Path(),
	}
}
