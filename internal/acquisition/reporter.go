package acquisition

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"vidingest/internal/logging"
	"vidingest/internal/services/ytdlp"
)

// reporter samples tool progress and forwards it to a sink, shielding the
// download from sink failures. Tool output arrives on two goroutines, so
// updates are serialized.
type reporter struct {
	mu      sync.Mutex
	id      string
	sink    ProgressSink
	sampler *logging.ProgressSampler
	now     func() time.Time
	logger  *slog.Logger
	last    DownloadProgress
}

func newReporter(id string, sink ProgressSink, interval time.Duration, now func() time.Time, logger *slog.Logger) *reporter {
	return &reporter{
		id:      id,
		sink:    sink,
		sampler: logging.NewProgressSampler(interval).WithClock(now),
		now:     now,
		logger:  logger,
	}
}

func (r *reporter) reset() {
	r.sampler.Reset()
}

func (r *reporter) progress(ctx context.Context, p ytdlp.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	update := DownloadProgress{
		ExternalID:      r.id,
		Stage:           StageDownloading,
		BytesDownloaded: p.Downloaded,
		TotalBytes:      p.Total,
		Percent:         p.Percent(),
		Throughput:      p.Speed,
		ETA:             p.ETA,
		At:              r.now(),
	}
	r.last = update
	if !r.sampler.ShouldLog(update.Percent, update.Stage) {
		return
	}
	r.publish(ctx, update)
}

// complete always emits a final 100% update carrying the verified size.
func (r *reporter) complete(ctx context.Context, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	update := r.last
	update.ExternalID = r.id
	update.Stage = StageCompleted
	update.Percent = 100
	update.ETA = 0
	update.At = r.now()
	if info, err := os.Stat(path); err == nil {
		update.BytesDownloaded = info.Size()
		update.TotalBytes = info.Size()
	}
	r.publish(ctx, update)
}

func (r *reporter) publish(ctx context.Context, update DownloadProgress) {
	if r.sink == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("progress sink panicked", logging.Any("panic", rec))
		}
	}()
	if err := r.sink.Publish(ctx, update); err != nil {
		r.logger.Debug("progress sink failed", logging.Error(err))
	}
}
