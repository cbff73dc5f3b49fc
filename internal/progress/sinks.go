package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"vidingest/internal/acquisition"
	"vidingest/internal/config"
	"vidingest/internal/logging"
)

// latestTTL bounds how long the last update for a video stays readable.
const latestTTL = 24 * time.Hour

// LogSink writes progress updates to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink logging at info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logging.NewComponentLogger(logger, "progress")}
}

// Publish logs the update.
func (s *LogSink) Publish(ctx context.Context, update acquisition.DownloadProgress) error {
	logging.WithContext(ctx, s.logger).Info("download progress",
		logging.String(logging.FieldVideoID, update.ExternalID),
		logging.String(logging.FieldStage, update.Stage),
		logging.Float64("percent", update.Percent),
		logging.Int64("bytes", update.BytesDownloaded),
		logging.Int64("total_bytes", update.TotalBytes),
		logging.Float64("throughput_bps", update.Throughput),
		logging.Duration("eta", update.ETA),
	)
	return nil
}

// Publisher is the subset of *redis.Client used by RedisSink.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisSink publishes JSON updates on channelPrefix+videoID.
type RedisSink struct {
	client Publisher
	prefix string
}

// NewRedisSink wraps an existing client.
func NewRedisSink(client Publisher, channelPrefix string) *RedisSink {
	return &RedisSink{client: client, prefix: channelPrefix}
}

// Channel returns the pub/sub channel for a video.
func (s *RedisSink) Channel(videoID string) string {
	return s.prefix + videoID
}

// LatestKey returns the key holding the most recent update for a video.
func (s *RedisSink) LatestKey(videoID string) string {
	return s.prefix + videoID + ":latest"
}

// Publish encodes the update and publishes it, then records it as the latest.
func (s *RedisSink) Publish(ctx context.Context, update acquisition.DownloadProgress) error {
	if strings.TrimSpace(update.ExternalID) == "" {
		return errors.New("progress: update without video id")
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("progress: encode update: %w", err)
	}
	if err := s.client.Publish(ctx, s.Channel(update.ExternalID), payload).Err(); err != nil {
		return fmt.Errorf("progress: publish: %w", err)
	}
	if err := s.client.Set(ctx, s.LatestKey(update.ExternalID), payload, latestTTL).Err(); err != nil {
		return fmt.Errorf("progress: store latest: %w", err)
	}
	return nil
}

// Multi fans updates out to every sink and joins their errors.
type Multi []acquisition.ProgressSink

// Publish forwards the update to each non-nil sink.
func (m Multi) Publish(ctx context.Context, update acquisition.DownloadProgress) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, update); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewFromConfig builds the configured sink set. The returned close function
// releases the Redis connection when one was opened. An unreachable Redis
// server is logged and skipped rather than treated as fatal.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (acquisition.ProgressSink, func() error) {
	sinks := Multi{NewLogSink(logger)}
	closer := func() error { return nil }
	if cfg == nil || !cfg.Progress.RedisEnabled {
		return sinks, closer
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Progress.RedisAddr,
		Password: cfg.Progress.RedisPassword,
		DB:       cfg.Progress.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logging.WarnWithContext(logging.NewComponentLogger(logger, "progress"), "redis unavailable; progress publishing disabled", "progress_redis_unavailable",
			logging.String("addr", cfg.Progress.RedisAddr),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check progress.redis_addr or disable progress.redis_enabled"),
			logging.String(logging.FieldImpact, "progress is only logged"),
		)
		_ = client.Close()
		return sinks, closer
	}
	return append(sinks, NewRedisSink(client, cfg.Progress.ChannelPrefix)), client.Close
}
