package models

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vidingest/internal/config"
	"vidingest/internal/fileutil"
	"vidingest/internal/logging"
	"vidingest/internal/services"
)

// SpaceChecker gates a write of expectedBytes.
type SpaceChecker interface {
	RequireSpace(op string, expectedBytes int64) error
}

// Options configures a Selector.
type Options struct {
	TinyThresholdSeconds float64
	BaseThresholdSeconds float64
	ForcedTier           Tier
	Dir                  string
	DownloadBaseURL      string
	HTTPClient           *http.Client
}

// Selector picks a model tier for a video and materializes the tier's
// artifact on disk.
type Selector struct {
	opts   Options
	space  SpaceChecker
	client *http.Client
	logger *slog.Logger

	mu        sync.RWMutex
	available []Tier
	loaded    bool

	downloadMu sync.Mutex
}

// NewSelector constructs a Selector. space may be nil to skip admission checks.
func NewSelector(opts Options, space SpaceChecker, logger *slog.Logger) *Selector {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Minute}
	}
	return &Selector{
		opts:   opts,
		space:  space,
		client: client,
		logger: logging.NewComponentLogger(logger, "models"),
	}
}

// NewFromConfig builds a Selector from the models section of cfg.
func NewFromConfig(cfg *config.Config, space SpaceChecker, logger *slog.Logger) *Selector {
	forced, _ := ParseTier(cfg.Models.ForcedTier)
	return NewSelector(Options{
		TinyThresholdSeconds: float64(cfg.Models.TinyThresholdSeconds),
		BaseThresholdSeconds: float64(cfg.Models.BaseThresholdSeconds),
		ForcedTier:           forced,
		Dir:                  cfg.Paths.ModelDir,
		DownloadBaseURL:      cfg.Models.DownloadBaseURL,
		HTTPClient:           &http.Client{Timeout: time.Duration(cfg.Models.DownloadTimeoutSeconds) * time.Second},
	}, space, logger)
}

// SelectModel maps a duration to a tier. A forced tier always wins.
// Otherwise durations below the tiny threshold get tiny, below the base
// threshold get base, and everything else gets small.
func (s *Selector) SelectModel(durationSeconds float64) (Tier, error) {
	if durationSeconds < 0 || math.IsNaN(durationSeconds) {
		return "", services.InvalidArgument("select model", "duration", "must be a non-negative number of seconds")
	}
	if s.opts.ForcedTier != "" {
		return s.opts.ForcedTier, nil
	}
	switch {
	case durationSeconds < s.opts.TinyThresholdSeconds:
		return TierTiny, nil
	case durationSeconds < s.opts.BaseThresholdSeconds:
		return TierBase, nil
	default:
		return TierSmall, nil
	}
}

// ModelPath returns the local artifact for tier, downloading it after a disk
// admission check when it is not already present.
func (s *Selector) ModelPath(ctx context.Context, tier Tier) (string, error) {
	if tier.Weight() < 0 {
		return "", services.InvalidArgument("model path", "tier", fmt.Sprintf("unknown tier %q", tier))
	}
	path := filepath.Join(s.opts.Dir, tier.FileName())
	if nonEmptyFile(path) {
		return path, nil
	}

	s.downloadMu.Lock()
	defer s.downloadMu.Unlock()
	if nonEmptyFile(path) {
		return path, nil
	}
	if err := s.download(ctx, tier, path); err != nil {
		return "", err
	}
	return path, nil
}

// Available returns the cached list of locally present tiers, scanning the
// model directory on first use.
func (s *Selector) Available() []Tier {
	s.mu.RLock()
	if s.loaded {
		out := append([]Tier(nil), s.available...)
		s.mu.RUnlock()
		return out
	}
	s.mu.RUnlock()
	tiers, err := s.Refresh()
	if err != nil {
		s.logger.Debug("model scan failed", logging.Error(err))
	}
	return tiers
}

// Refresh rescans the model directory and replaces the cached tier list.
func (s *Selector) Refresh() ([]Tier, error) {
	var found []Tier
	var scanErr error
	for _, tier := range allTiers {
		info, err := os.Stat(filepath.Join(s.opts.Dir, tier.FileName()))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) && scanErr == nil {
				scanErr = err
			}
			continue
		}
		if info.Mode().IsRegular() && info.Size() > 0 {
			found = append(found, tier)
		}
	}
	s.mu.Lock()
	s.available = found
	s.loaded = true
	s.mu.Unlock()
	return append([]Tier(nil), found...), scanErr
}

// Import copies a locally obtained model file into the model directory with
// integrity verification, for hosts that cannot reach the download server.
func (s *Selector) Import(tier Tier, source string) (string, error) {
	if tier.Weight() < 0 {
		return "", services.InvalidArgument("import model", "tier", fmt.Sprintf("unknown tier %q", tier))
	}
	info, err := os.Stat(source)
	if err != nil {
		return "", fmt.Errorf("import model: %w", err)
	}
	if s.space != nil {
		if err := s.space.RequireSpace("import model", info.Size()); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(s.opts.Dir, 0o755); err != nil {
		return "", fmt.Errorf("import model: create dir: %w", err)
	}
	dest := filepath.Join(s.opts.Dir, tier.FileName())
	if err := fileutil.CopyFileVerified(source, dest); err != nil {
		return "", fmt.Errorf("import model: %w", err)
	}
	return dest, nil
}

func (s *Selector) download(ctx context.Context, tier Tier, dest string) error {
	const op = "download model"
	url := s.opts.DownloadBaseURL + "/" + tier.FileName()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return classifyHTTPError(ctx, op, string(tier), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return services.NotFound(op, string(tier), services.ReasonUnavailable, fmt.Errorf("GET %s: %s", url, resp.Status))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return services.Transient(op, string(tier), fmt.Errorf("GET %s: %s", url, resp.Status))
	default:
		return fmt.Errorf("%s: GET %s: %s", op, url, resp.Status)
	}

	expected := resp.ContentLength
	if expected <= 0 {
		expected = approxSizes[tier]
	}
	if s.space != nil {
		if err := s.space.RequireSpace(op, expected); err != nil {
			return err
		}
	}

	s.logger.Info("downloading model",
		logging.String("tier", string(tier)),
		logging.String("url", url),
		logging.Int64("expected_bytes", expected),
	)
	written, err := fileutil.WriteAtomic(dest, resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Transient(op, string(tier), err)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		_ = os.Remove(dest)
		return services.Transient(op, string(tier), fmt.Errorf("short download: got %d of %d bytes", written, resp.ContentLength))
	}
	s.logger.Info("model ready",
		logging.String("tier", string(tier)),
		logging.String("path", dest),
		logging.Int64("bytes", written),
	)
	return nil
}

func classifyHTTPError(ctx context.Context, op, id string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Transient(op, id, fmt.Errorf("request timed out: %w", err))
	}
	return services.Transient(op, id, err)
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
