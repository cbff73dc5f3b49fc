package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"vidingest/internal/config"
	"vidingest/internal/logging"
	"vidingest/internal/services"
)

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, available uint64, err error)

// Manager governs the temp-artifact tree: one directory per video under root.
type Manager struct {
	root       string
	multiplier float64
	logger     *slog.Logger
	statfs     statfsFunc
	now        func() time.Time
}

// Stats describes the current artifact tree.
type Stats struct {
	Root              string        `json:"root"`
	TotalFiles        int           `json:"total_files"`
	TotalBytes        int64         `json:"total_bytes"`
	DirectoryCount    int           `json:"directory_count"`
	AvailableBytes    uint64        `json:"available_bytes"`
	OldestArtifactAge time.Duration `json:"oldest_artifact_age"`
}

// NewManager builds a manager rooted at root. multiplier is the disk safety
// factor applied to expected download sizes; values below 1 default to 2.
func NewManager(root string, multiplier float64, logger *slog.Logger) *Manager {
	if multiplier < 1 {
		multiplier = 2
	}
	return &Manager{
		root:       filepath.Clean(root),
		multiplier: multiplier,
		logger:     logging.NewComponentLogger(logger, "storage"),
		statfs:     realStatfs,
		now:        time.Now,
	}
}

// NewFromConfig builds a manager from the storage settings in cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Manager {
	return NewManager(cfg.Paths.StorageRoot, cfg.Storage.SafetyMultiplier, logger)
}

// WithStatfs overrides the filesystem stat source; intended for tests.
func (m *Manager) WithStatfs(fn func(path string) (uint64, uint64, error)) *Manager {
	if fn != nil {
		m.statfs = fn
	}
	return m
}

// WithClock overrides the time source; intended for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

// Root returns the artifact root directory.
func (m *Manager) Root() string {
	return m.root
}

// Multiplier returns the disk safety factor.
func (m *Manager) Multiplier() float64 {
	return m.multiplier
}

// AvailableBytes reports free space on the filesystem holding root.
func (m *Manager) AvailableBytes() (uint64, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return 0, fmt.Errorf("storage: create root: %w", err)
	}
	_, available, err := m.statfs(m.root)
	if err != nil {
		return 0, fmt.Errorf("storage: statfs: %w", err)
	}
	return available, nil
}

// RequiredBytes returns the free space needed to admit expectedBytes.
func (m *Manager) RequiredBytes(expectedBytes int64) uint64 {
	if expectedBytes <= 0 {
		return 0
	}
	return uint64(math.Ceil(m.multiplier * float64(expectedBytes)))
}

// AdmitDownload reports whether available space covers multiplier times
// expectedBytes. The check is advisory and not reserved against concurrent writers.
func (m *Manager) AdmitDownload(expectedBytes int64) (bool, error) {
	if expectedBytes < 0 {
		return false, services.InvalidArgument("admit download", "expected_bytes", "must not be negative")
	}
	available, err := m.AvailableBytes()
	if err != nil {
		return false, err
	}
	return available >= m.RequiredBytes(expectedBytes), nil
}

// RequireSpace is AdmitDownload returning a ResourceExhausted error on refusal.
func (m *Manager) RequireSpace(op string, expectedBytes int64) error {
	if expectedBytes < 0 {
		return services.InvalidArgument(op, "expected_bytes", "must not be negative")
	}
	available, err := m.AvailableBytes()
	if err != nil {
		return err
	}
	required := m.RequiredBytes(expectedBytes)
	if available < required {
		return services.ResourceExhausted(op, required, available)
	}
	return nil
}

// VideoDir returns the per-video artifact directory without creating it.
func (m *Manager) VideoDir(videoID string) string {
	return filepath.Join(m.root, sanitize(videoID))
}

// GeneratePath returns a unique, timestamp-qualified artifact path inside the
// per-video directory, creating the directory. The extension is lowercased
// and given exactly one leading dot.
func (m *Manager) GeneratePath(videoID, extension string) (string, error) {
	id := sanitize(videoID)
	if id == "" {
		return "", services.InvalidArgument("generate path", "video_id", "must not be empty")
	}
	ext := NormalizeExtension(extension)
	if ext == "" {
		return "", services.InvalidArgument("generate path", "extension", "must not be empty")
	}
	dir := filepath.Join(m.root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: create video dir: %w", err)
	}
	stamp := m.now().UTC().Format("20060102T150405.000Z")
	stamp = strings.Replace(stamp, ".", "", 1)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return filepath.Join(dir, fmt.Sprintf("%s_%s_%s%s", id, stamp, suffix, ext)), nil
}

// NormalizeExtension lowercases ext and ensures a single leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	ext = strings.TrimLeft(ext, ".")
	if ext == "" {
		return ""
	}
	return "." + ext
}

// CleanupOlderThan deletes files whose modification time is strictly older
// than now minus hours, then removes directories this pass left empty.
// Newer files, and directories that were already empty, are never touched.
func (m *Manager) CleanupOlderThan(hours float64) (int, error) {
	if hours < 0 || math.IsNaN(hours) {
		return 0, services.InvalidArgument("cleanup", "hours", "must not be negative")
	}
	cutoff := m.now().Add(-time.Duration(hours * float64(time.Hour)))

	deleted := 0
	emptied := make(map[string]struct{})
	err := filepath.WalkDir(m.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(m.logger, "failed to delete stale artifact", "artifact_cleanup_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check file permissions under the storage root"),
				logging.String(logging.FieldImpact, "disk space is not reclaimed until the next sweep"),
			)
			return nil
		}
		deleted++
		emptied[filepath.Dir(path)] = struct{}{}
		return nil
	})
	if err != nil {
		return deleted, fmt.Errorf("storage: cleanup walk: %w", err)
	}

	m.pruneEmptied(emptied)
	if deleted > 0 {
		m.logger.Info("stale artifacts removed",
			logging.Int("deleted", deleted),
			logging.Float64("max_age_hours", hours),
		)
	}
	return deleted, nil
}

// DeleteArtifacts removes the per-video directory and returns how many files it held.
func (m *Manager) DeleteArtifacts(videoID string) (int, error) {
	id := sanitize(videoID)
	if id == "" {
		return 0, services.InvalidArgument("delete artifacts", "video_id", "must not be empty")
	}
	dir := filepath.Join(m.root, id)
	count := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("storage: scan %s: %w", dir, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("storage: remove %s: %w", dir, err)
	}
	m.logger.Debug("video artifacts deleted",
		logging.String(logging.FieldVideoID, id),
		logging.Int("files", count),
	)
	return count, nil
}

// Stats walks the artifact tree and reports usage.
func (m *Manager) Stats() (Stats, error) {
	stats := Stats{Root: m.root}
	var oldest time.Time
	err := filepath.WalkDir(m.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			if path != m.root && filepath.Dir(path) == m.root {
				stats.DirectoryCount++
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		stats.TotalFiles++
		stats.TotalBytes += info.Size()
		if oldest.IsZero() || info.ModTime().Before(oldest) {
			oldest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("storage: stats walk: %w", err)
	}
	if !oldest.IsZero() {
		stats.OldestArtifactAge = m.now().Sub(oldest)
	}
	available, err := m.AvailableBytes()
	if err != nil {
		return stats, err
	}
	stats.AvailableBytes = available
	return stats, nil
}

// Sweep runs CleanupOlderThan on interval until ctx ends.
func (m *Manager) Sweep(ctx context.Context, interval time.Duration, maxAgeHours float64) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := m.CleanupOlderThan(maxAgeHours); err != nil {
			logging.WarnWithContext(m.logger, "artifact sweep failed", "artifact_sweep_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale artifacts remain until the next sweep"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pruneEmptied removes dirs that are now empty, deepest first, and climbs to
// a parent only when its child was removed here. The root itself stays.
func (m *Manager) pruneEmptied(dirs map[string]struct{}) {
	pending := slices.Collect(maps.Keys(dirs))
	for len(pending) > 0 {
		slices.SortFunc(pending, func(a, b string) int {
			return strings.Count(b, string(filepath.Separator)) - strings.Count(a, string(filepath.Separator))
		})
		dir := pending[0]
		pending = pending[1:]
		if dir == m.root || !strings.HasPrefix(dir, m.root+string(filepath.Separator)) {
			continue
		}
		if !removeIfEmpty(dir) {
			continue
		}
		if parent := filepath.Dir(dir); !slices.Contains(pending, parent) {
			pending = append(pending, parent)
		}
	}
}

func removeIfEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return false
	}
	return os.Remove(dir) == nil
}

func sanitize(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		" ", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
	)
	value = replacer.Replace(value)
	value = strings.Trim(value, ".")
	return value
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	available := stat.Bavail * uint64(stat.Bsize)
	return total, available, nil
}
