package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"vidingest/internal/acquisition"
	"vidingest/internal/logging"
	"vidingest/internal/pipeline"
	"vidingest/internal/progress"
	"vidingest/internal/queue"
	"vidingest/internal/services"
)

var stageStatus = map[pipeline.Stage]queue.Status{
	pipeline.StageResolving:   queue.StatusResolving,
	pipeline.StageDownloading: queue.StatusDownloading,
	pipeline.StageExtracting:  queue.StatusExtracting,
}

func (m *Manager) processItem(ctx context.Context, logger *slog.Logger, item *queue.Item) {
	m.active.Add(1)
	defer m.active.Add(-1)

	ctx = services.WithItemID(ctx, item.ID)
	ctx = services.WithVideoID(ctx, item.ExternalVideoID)
	logger = logging.WithContext(ctx, logger)
	logger.Info("processing item", logging.String("source", item.Source()))

	stopHeartbeat := m.heartbeat.keepAlive(ctx, item.ID)
	defer stopHeartbeat()

	hooks := pipeline.Hooks{
		OnStage: func(stageCtx context.Context, stage pipeline.Stage) {
			m.recordStage(stageCtx, logger, item, stage)
		},
		Sink: progress.Multi{m.sink, m.queueSink(item.ID, logger)},
	}
	job := pipeline.Job{
		ExternalVideoID:  item.ExternalVideoID,
		UploadedFilePath: item.UploadedFilePath,
		Priority:         item.Priority,
		UserID:           item.UserID,
	}
	result, err := m.runner.Run(ctx, job, hooks)

	// Outcomes are persisted even when the run was cancelled by shutdown.
	persistCtx := context.WithoutCancel(ctx)
	applyResult(item, result)
	if err != nil {
		m.recordFailure(persistCtx, ctx, logger, item, err)
	} else {
		item.Status = queue.StatusCompleted
		item.ProgressStage = string(queue.StatusCompleted)
		item.ProgressPercent = 100
		item.ProgressMessage = ""
		item.ErrorKind = ""
		item.ErrorMessage = ""
		item.LastHeartbeat = nil
		logger.Info("item completed",
			logging.String("audio_path", item.AudioPath),
			logging.String("model_tier", item.ModelTier),
		)
	}
	if updateErr := m.store.Update(persistCtx, item); updateErr != nil {
		logging.ErrorWithContext(logger, "failed to persist item outcome", "queue_update_failed",
			logging.Error(updateErr),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}
	m.setLastItem(*item)
}

func applyResult(item *queue.Item, result pipeline.Result) {
	if result.CorrelationID != "" {
		item.CorrelationID = result.CorrelationID
	}
	if result.Metadata != nil {
		if data, err := json.Marshal(result.Metadata); err == nil {
			item.MetadataJSON = string(data)
		}
		if result.Metadata.Title != "" {
			item.Title = result.Metadata.Title
		}
	}
	if result.ModelTier != "" {
		item.ModelTier = result.ModelTier.String()
	}
	if result.AudioPath != "" {
		item.AudioPath = result.AudioPath
	}
}

func (m *Manager) recordFailure(persistCtx, runCtx context.Context, logger *slog.Logger, item *queue.Item, err error) {
	kind := services.KindOf(err)
	item.LastHeartbeat = nil
	item.ErrorKind = string(kind)
	item.ErrorMessage = err.Error()

	if errors.Is(err, context.Canceled) && runCtx.Err() != nil {
		item.Status = queue.StatusFailed
		item.ErrorMessage = queue.DaemonStopReason
		logger.Info("item interrupted by shutdown")
		return
	}

	item.Status = queue.FailureStatus(err)
	item.NeedsReview = item.Status == queue.StatusReview
	if item.NeedsReview {
		item.ReviewReason = services.Describe(kind)
	}
	m.setLastError(err)
	logging.ErrorWithContext(logger, "item failed", "item_failed",
		logging.String("resolved_status", string(item.Status)),
		logging.ErrorKind(err),
		logging.Int("attempts", services.AttemptsOf(err)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, failureHint(item.Status)),
		logging.Alert("item_failure"),
	)
	m.cleanupArtifacts(persistCtx, logger, item)
}

func failureHint(status queue.Status) string {
	if status == queue.StatusReview {
		return "inspect the video or input; retrying will not help"
	}
	return "retry with 'vidingest queue retry' once the cause is resolved"
}

// cleanupArtifacts removes partial files of a failed video unless a completed
// item still owns audio in the same directory.
func (m *Manager) cleanupArtifacts(ctx context.Context, logger *slog.Logger, item *queue.Item) {
	if m.cleaner == nil || item.ExternalVideoID == "" {
		return
	}
	owned, err := m.store.HasCompleted(ctx, item.ExternalVideoID)
	if err != nil || owned {
		return
	}
	removed, err := m.cleaner.DeleteArtifacts(item.ExternalVideoID)
	if err != nil {
		logging.WarnWithContext(logger, "failed to remove partial artifacts", "artifact_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "files remain until the next age-based sweep"),
		)
		return
	}
	if removed > 0 {
		logger.Debug("partial artifacts removed", logging.Int("files", removed))
	}
	item.AudioPath = ""
}

func (m *Manager) recordStage(ctx context.Context, logger *slog.Logger, item *queue.Item, stage pipeline.Stage) {
	status, ok := stageStatus[stage]
	if !ok {
		if err := m.store.UpdateProgress(ctx, item.ID, string(stage), 0, ""); err != nil {
			logger.Debug("failed to record stage", logging.Error(err))
		}
		return
	}
	if status == item.Status {
		return
	}
	if err := m.store.Transition(ctx, item.ID, status); err != nil {
		logging.WarnWithContext(logger, "failed to record stage transition", "queue_transition_failed",
			logging.String(logging.FieldStage, string(stage)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "queue status lags behind the pipeline"),
		)
		return
	}
	item.Status = status
	logger.Debug("stage entered", logging.String(logging.FieldStage, string(stage)))
}

// queueSink mirrors download progress into the queue item.
func (m *Manager) queueSink(itemID int64, logger *slog.Logger) acquisition.ProgressSink {
	return acquisition.SinkFunc(func(ctx context.Context, update acquisition.DownloadProgress) error {
		message := humanize.Bytes(uint64(max(update.BytesDownloaded, 0)))
		if update.TotalBytes > 0 {
			message = fmt.Sprintf("%s of %s", message, humanize.Bytes(uint64(update.TotalBytes)))
		}
		if update.Throughput > 0 {
			message = fmt.Sprintf("%s at %s/s", message, humanize.Bytes(uint64(update.Throughput)))
		}
		if err := m.store.UpdateProgress(ctx, itemID, update.Stage, update.Percent, message); err != nil {
			logger.Debug("failed to record progress", logging.Error(err))
			return err
		}
		return nil
	})
}
