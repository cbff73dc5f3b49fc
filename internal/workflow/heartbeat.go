package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vidingest/internal/logging"
	"vidingest/internal/queue"
)

// heartbeats keeps last_heartbeat fresh for items this process owns and
// returns items whose heartbeat has lapsed to pending.
type heartbeats struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu        sync.Mutex
	lastSweep time.Time
}

func newHeartbeats(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *heartbeats {
	return &heartbeats{
		store:    store,
		logger:   logger.With(logging.String(logging.FieldComponent, "heartbeat")),
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
	}
}

// keepAlive beats for itemID in the background until stop is called. stop
// blocks until the beating goroutine has exited.
func (h *heartbeats) keepAlive(ctx context.Context, itemID int64) (stop func()) {
	if h.interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.beat(ctx, itemID)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (h *heartbeats) beat(ctx context.Context, itemID int64) {
	err := h.store.UpdateHeartbeat(ctx, itemID)
	if err == nil || ctx.Err() != nil {
		return
	}
	logging.WarnWithContext(logging.WithContext(ctx, h.logger), "heartbeat update failed", "heartbeat_update_failed",
		logging.Int64(logging.FieldItemID, itemID),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check queue database access"),
		logging.String(logging.FieldImpact, "item may be reclaimed while still running"),
	)
}

// reclaim requeues stale items. Calls closer together than the heartbeat
// interval are skipped so idle workers do not hammer the database.
func (h *heartbeats) reclaim(ctx context.Context) error {
	if h.timeout <= 0 {
		return nil
	}
	now := h.now()
	h.mu.Lock()
	if !h.lastSweep.IsZero() && now.Sub(h.lastSweep) < h.interval {
		h.mu.Unlock()
		return nil
	}
	h.lastSweep = now
	h.mu.Unlock()

	n, err := h.store.ReclaimStaleProcessing(ctx, now.Add(-h.timeout))
	if err != nil {
		return err
	}
	if n > 0 {
		h.logger.Info("reclaimed stale items", logging.Int64("count", n), logging.Duration("timeout", h.timeout))
	}
	return nil
}
