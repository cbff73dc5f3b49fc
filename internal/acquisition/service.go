package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"vidingest/internal/config"
	"vidingest/internal/logging"
	"vidingest/internal/services"
	"vidingest/internal/services/youtube"
	"vidingest/internal/services/ytdlp"
	"vidingest/internal/ttlcache"
)

const downloadOp = "download video"

// Downloader is the subset of ytdlp.Client used for acquisition.
type Downloader interface {
	DumpJSON(ctx context.Context, videoURL, externalID string) (*ytdlp.Info, error)
	Download(ctx context.Context, req ytdlp.DownloadRequest) (string, error)
}

// Storage is the subset of storage.Manager used for acquisition.
type Storage interface {
	RequireSpace(op string, expectedBytes int64) error
	GeneratePath(videoID, extension string) (string, error)
}

// Options tunes a Service.
type Options struct {
	Retry            services.RetryPolicy
	AttemptTimeout   time.Duration
	ProgressInterval time.Duration
	StreamCacheTTL   time.Duration
	Format           string
}

// OptionsFromConfig derives acquisition options from the download section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Retry: services.RetryPolicy{
			Attempts: cfg.Download.RetryAttempts,
			Delays:   cfg.DownloadRetryDelays(),
		},
		AttemptTimeout:   time.Duration(cfg.Download.AttemptTimeoutSeconds) * time.Second,
		ProgressInterval: cfg.ProgressInterval(),
		StreamCacheTTL:   time.Duration(cfg.Download.StreamCacheTTLSeconds) * time.Second,
		Format:           cfg.Download.Format,
	}
}

// Service downloads media for a video with admission control, retries,
// and output verification.
type Service struct {
	tool    Downloader
	storage Storage
	opts    Options
	streams *ttlcache.Cache[AudioStreamDescriptor]
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs an acquisition service.
func NewService(tool Downloader, storage Storage, opts Options, logger *slog.Logger) *Service {
	if opts.Format == "" {
		opts.Format = "bestaudio/best"
	}
	return &Service{
		tool:    tool,
		storage: storage,
		opts:    opts,
		streams: ttlcache.New[AudioStreamDescriptor](opts.StreamCacheTTL),
		logger:  logging.NewComponentLogger(logger, "acquisition"),
		now:     time.Now,
	}
}

// WithClock overrides the time source; intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
		s.streams.WithClock(now)
	}
	return s
}

// BestAudioStream returns the highest-bitrate compatible audio stream,
// caching the answer briefly per video.
func (s *Service) BestAudioStream(ctx context.Context, externalID string) (AudioStreamDescriptor, error) {
	const op = "best audio stream"
	id, err := youtube.ParseVideoID(externalID)
	if err != nil {
		return AudioStreamDescriptor{}, err
	}
	if cached, ok := s.streams.Lookup(id); ok {
		return cached, nil
	}
	info, err := s.tool.DumpJSON(ctx, youtube.WatchURL(id), id)
	if err != nil {
		return AudioStreamDescriptor{}, err
	}
	desc, ok := SelectBestAudio(info.Formats)
	if !ok {
		return AudioStreamDescriptor{}, services.NotFound(op, id, services.ReasonUnavailable, errors.New("no compatible audio stream"))
	}
	s.streams.Store(id, desc)
	return desc, nil
}

// IsAvailable reports whether the video can currently be fetched. It never
// fails: every error is logged and reported as false.
func (s *Service) IsAvailable(ctx context.Context, externalID string) (available bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("availability probe panicked", logging.Any("panic", r))
			available = false
		}
	}()
	_, err := s.BestAudioStream(ctx, externalID)
	if err == nil {
		return true
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldVideoID, externalID),
		logging.ErrorKind(err),
		logging.Error(err),
	}
	switch services.KindOf(err) {
	case services.KindTransient, services.KindToolFailure, services.KindTimeout, "":
		logging.WarnWithContext(s.logger, "availability probe failed", "availability_probe_failed",
			append(attrs,
				logging.String(logging.FieldErrorHint, "check network connectivity and the yt-dlp version"),
				logging.String(logging.FieldImpact, "video reported unavailable"),
			)...)
	default:
		s.logger.Debug("video unavailable", logging.Args(attrs...)...)
	}
	return false
}

// DownloadVideo fetches the video's media into its artifact directory and
// returns the local path. Transient failures are retried on the configured
// schedule; everything else fails immediately.
func (s *Service) DownloadVideo(ctx context.Context, externalID string, sink ProgressSink) (string, error) {
	id, err := youtube.ParseVideoID(externalID)
	if err != nil {
		return "", err
	}
	logger := s.logger.With(logging.String(logging.FieldVideoID, id))
	reporter := newReporter(id, sink, s.opts.ProgressInterval, s.now, logger)

	expected := s.expectedSize(ctx, id, logger)

	policy := s.opts.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Info("download retry scheduled",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.ErrorKind(err),
			logging.Error(err),
		)
	}

	var path string
	err = services.Retry(ctx, downloadOp, id, policy, func(ctx context.Context, attempt int) error {
		reporter.reset()
		p, attemptErr := s.attempt(ctx, id, attempt, expected, reporter, logger)
		if attemptErr == nil {
			path = p
		}
		return attemptErr
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !services.IsKind(err, services.KindTimeout) {
			return "", services.Timeout(downloadOp, id, err)
		}
		return "", err
	}
	reporter.complete(ctx, path)
	return path, nil
}

func (s *Service) expectedSize(ctx context.Context, id string, logger *slog.Logger) int64 {
	desc, err := s.BestAudioStream(ctx, id)
	if err != nil || desc.Size <= 0 {
		logger.Debug("download size unknown; skipping disk admission", logging.Error(err))
		return 0
	}
	return desc.Size
}

func (s *Service) attempt(ctx context.Context, id string, attempt int, expected int64, reporter *reporter, logger *slog.Logger) (string, error) {
	logger = logger.With(logging.Int("attempt", attempt))
	state := StateIdle
	transition := func(next State) {
		logger.Debug("download state", logging.String("from", string(state)), logging.String("to", string(next)))
		state = next
	}
	fail := func(err error) (string, error) {
		transition(StateFailed)
		return "", err
	}

	transition(StateDiskCheck)
	if expected > 0 {
		if err := s.storage.RequireSpace(downloadOp, expected); err != nil {
			return fail(err)
		}
	}

	transition(StateDownloading)
	// yt-dlp substitutes the container extension for %(ext)s.
	template, err := s.storage.GeneratePath(id, "%(ext)s")
	if err != nil {
		return fail(services.Transient(downloadOp, id, err))
	}
	attemptCtx := ctx
	if s.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, s.opts.AttemptTimeout)
		defer cancel()
	}
	path, err := s.tool.Download(attemptCtx, ytdlp.DownloadRequest{
		URL:            youtube.WatchURL(id),
		ExternalID:     id,
		OutputTemplate: template,
		Format:         s.opts.Format,
		OnProgress: func(p ytdlp.Progress) {
			reporter.progress(ctx, p)
		},
	})
	if err != nil {
		if ctx.Err() == nil && attemptCtx.Err() != nil {
			err = services.Transient(downloadOp, id, fmt.Errorf("attempt exceeded %s", s.opts.AttemptTimeout))
		}
		return fail(err)
	}

	transition(StateVerifying)
	if err := verify(path); err != nil {
		_ = os.Remove(path)
		return fail(services.Transient(downloadOp, id, err))
	}
	transition(StateSucceeded)
	return path, nil
}

func verify(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("verify output: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("verify output: %s is not a regular file", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("verify output: %s is empty", path)
	}
	return nil
}
