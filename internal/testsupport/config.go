package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vidingest/internal/config"
)

// ConfigOption adjusts a test configuration after its directories exist.
type ConfigOption func(t testing.TB, base string, cfg *config.Config)

// NewConfig returns the default configuration rooted in a fresh temp
// directory: storage, models, state and logs each get their own subdirectory
// and Redis progress publishing is off.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StorageRoot = filepath.Join(base, "storage")
	cfg.Paths.ModelDir = filepath.Join(base, "models")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Progress.RedisEnabled = false

	for _, opt := range opts {
		opt(t, base, &cfg)
	}
	return &cfg
}

// BaseDir returns the temp directory a NewConfig result is rooted in.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StorageRoot)
}

// WithStubbedBinaries puts no-op executables named after the external tools
// (ffmpeg, ffprobe and yt-dlp unless names are given) first on PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	if len(names) == 0 {
		names = []string{"ffmpeg", "ffprobe", "yt-dlp"}
	}
	return func(t testing.TB, base string, _ *config.Config) {
		bin := filepath.Join(base, "bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", bin, err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				t.Fatalf("stub %s: %v", name, err)
			}
		}
		t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}
