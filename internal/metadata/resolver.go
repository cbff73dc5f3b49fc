package metadata

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vidingest/internal/config"
	"vidingest/internal/logging"
	"vidingest/internal/services"
	"vidingest/internal/services/youtube"
	"vidingest/internal/ttlcache"
)

const resolveOp = "resolve metadata"

// Options tunes a Resolver.
type Options struct {
	CacheTTL        time.Duration
	MaxDuration     time.Duration
	Retry           services.RetryPolicy
	FallbackEnabled bool
}

// OptionsFromConfig derives resolver options from the metadata section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CacheTTL:    cfg.MetadataCacheTTL(),
		MaxDuration: cfg.MaxVideoDuration(),
		Retry: services.RetryPolicy{
			Attempts:  cfg.Metadata.RetryAttempts,
			BaseDelay: time.Duration(cfg.Metadata.RetryBaseDelayMS) * time.Millisecond,
			MaxDelay:  time.Duration(cfg.Metadata.RetryMaxDelayMS) * time.Millisecond,
		},
		FallbackEnabled: cfg.Metadata.FallbackEnabled,
	}
}

// Resolver returns validated metadata for a video, consulting a short-lived
// cache first, then the primary provider with retries, and switching once to
// the secondary provider when the primary denies access.
type Resolver struct {
	primary   Provider
	secondary Provider
	opts      Options
	cache     *ttlcache.Cache[VideoMetadata]
	logger    *slog.Logger
}

type enabler interface {
	Enabled() bool
}

// NewResolver wires the providers. Either may be nil; a primary that reports
// itself disabled is skipped in favour of the secondary.
func NewResolver(primary, secondary Provider, opts Options, logger *slog.Logger) *Resolver {
	return &Resolver{
		primary:   primary,
		secondary: secondary,
		opts:      opts,
		cache:     ttlcache.New[VideoMetadata](opts.CacheTTL),
		logger:    logging.NewComponentLogger(logger, "metadata"),
	}
}

// NewFromConfig wires the Data API provider and, when extractor is non-nil,
// the yt-dlp fallback.
func NewFromConfig(cfg *config.Config, extractor Extractor, logger *slog.Logger) *Resolver {
	client := youtube.NewClient(
		cfg.Metadata.APIKey,
		cfg.Metadata.BaseURL,
		time.Duration(cfg.Metadata.TimeoutSeconds)*time.Second,
		youtube.WithRateLimit(cfg.Metadata.RequestsPerSecond),
	)
	var secondary Provider
	if extractor != nil {
		secondary = ExtractorProvider{Extractor: extractor}
	}
	return NewResolver(APIProvider{Client: client}, secondary, OptionsFromConfig(cfg), logger)
}

// WithClock overrides the cache clock; intended for tests.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.cache.WithClock(now)
	return r
}

// Resolve normalizes ref to an external id and returns its metadata.
func (r *Resolver) Resolve(ctx context.Context, ref string) (VideoMetadata, error) {
	id, err := youtube.ParseVideoID(ref)
	if err != nil {
		return VideoMetadata{}, services.Validation(resolveOp, "external_id", "not a recognizable video id or URL")
	}
	if cached, ok := r.cache.Lookup(id); ok {
		r.logger.Debug("metadata cache hit", logging.String(logging.FieldVideoID, id))
		return cached.Clone(), nil
	}

	meta, err := r.fetch(ctx, id)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !services.IsKind(err, services.KindTimeout) {
			return VideoMetadata{}, services.Timeout(resolveOp, id, err)
		}
		return VideoMetadata{}, err
	}

	meta.ExternalID = id
	meta = Normalize(meta)
	if err := Validate(meta, r.opts.MaxDuration); err != nil {
		var typed *services.Error
		if errors.As(err, &typed) {
			typed.ExternalID = id
		}
		return VideoMetadata{}, err
	}
	r.cache.Store(id, meta.Clone())
	r.logger.Info("metadata resolved",
		logging.String(logging.FieldVideoID, id),
		logging.String("source", string(meta.Source)),
		logging.Duration("duration", meta.Duration),
	)
	return meta, nil
}

// Invalidate drops the cached entry for ref, which may be an id or any URL
// form Resolve accepts. Unrecognized refs are ignored.
func (r *Resolver) Invalidate(ref string) {
	id, err := youtube.ParseVideoID(ref)
	if err != nil {
		return
	}
	r.cache.Remove(id)
}

// Purge drops every cached entry.
func (r *Resolver) Purge() {
	r.cache.Clear()
}

func (r *Resolver) fetch(ctx context.Context, id string) (VideoMetadata, error) {
	if !r.primaryEnabled() {
		if r.secondary == nil {
			return VideoMetadata{}, services.AccessDenied(resolveOp, id, errors.New("no metadata provider configured"))
		}
		r.logger.Debug("primary metadata provider disabled, using extractor", logging.String(logging.FieldVideoID, id))
		return r.secondary.Fetch(ctx, id)
	}

	policy := r.opts.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		r.logger.Info("metadata fetch retry scheduled",
			logging.String(logging.FieldVideoID, id),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
	}
	var meta VideoMetadata
	err := services.Retry(ctx, resolveOp, id, policy, func(ctx context.Context, _ int) error {
		var fetchErr error
		meta, fetchErr = r.primary.Fetch(ctx, id)
		return fetchErr
	})
	if err == nil {
		return meta, nil
	}
	if !services.IsKind(err, services.KindAccessDenied) || !r.opts.FallbackEnabled || r.secondary == nil {
		return VideoMetadata{}, err
	}

	logging.WarnWithContext(r.logger, "primary metadata provider denied access; using extractor", "metadata_fallback",
		logging.String(logging.FieldVideoID, id),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the API key and daily quota"),
		logging.String(logging.FieldImpact, "metadata comes from page extraction, which is slower"),
	)
	return r.secondary.Fetch(ctx, id)
}

func (r *Resolver) primaryEnabled() bool {
	if r.primary == nil {
		return false
	}
	if e, ok := r.primary.(enabler); ok {
		return e.Enabled()
	}
	return true
}
