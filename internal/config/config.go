package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StorageRoot string `toml:"storage_root"`
	ModelDir    string `toml:"model_dir"`
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
}

// Tools contains explicit executable locations. Empty values fall back to a
// PATH lookup of the default binary name.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
	YtDlp   string `toml:"yt_dlp"`
}

// Metadata contains configuration for the metadata resolver.
type Metadata struct {
	APIKey             string  `toml:"api_key"`
	BaseURL            string  `toml:"base_url"`
	TimeoutSeconds     int     `toml:"timeout_seconds"`
	RetryAttempts      int     `toml:"retry_attempts"`
	RetryBaseDelayMS   int     `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS    int     `toml:"retry_max_delay_ms"`
	CacheTTLSeconds    int     `toml:"cache_ttl_seconds"`
	MaxDurationSeconds int     `toml:"max_duration_seconds"`
	RequestsPerSecond  float64 `toml:"requests_per_second"`
	FallbackEnabled    bool    `toml:"fallback_enabled"`
}

// Download contains configuration for media acquisition.
type Download struct {
	RetryAttempts           int    `toml:"retry_attempts"`
	RetryDelaysSeconds      []int  `toml:"retry_delays_seconds"`
	AttemptTimeoutSeconds   int    `toml:"attempt_timeout_seconds"`
	ProgressIntervalSeconds int    `toml:"progress_interval_seconds"`
	StreamCacheTTLSeconds   int    `toml:"stream_cache_ttl_seconds"`
	Format                  string `toml:"format"`
}

// Models contains configuration for transcription model tier selection.
type Models struct {
	TinyThresholdSeconds   int    `toml:"tiny_threshold_seconds"`
	BaseThresholdSeconds   int    `toml:"base_threshold_seconds"`
	ForcedTier             string `toml:"forced_tier"`
	DownloadBaseURL        string `toml:"download_base_url"`
	DownloadTimeoutSeconds int    `toml:"download_timeout_seconds"`
}

// Storage contains configuration for temporary artifact governance.
type Storage struct {
	SafetyMultiplier     float64 `toml:"safety_multiplier"`
	MaxAgeHours          float64 `toml:"max_age_hours"`
	SweepIntervalMinutes int     `toml:"sweep_interval_minutes"`
}

// Audio contains configuration for audio extraction.
type Audio struct {
	ProbeInput      bool `toml:"probe_input"`
	FallbackEnabled bool `toml:"fallback_enabled"`
	TimeoutSeconds  int  `toml:"timeout_seconds"`
}

// Progress contains configuration for download progress publication.
type Progress struct {
	RedisEnabled  bool   `toml:"redis_enabled"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	ChannelPrefix string `toml:"channel_prefix"`
}

// Workflow contains configuration for daemon timing and concurrency.
type Workflow struct {
	QueuePollInterval int `toml:"queue_poll_interval"`
	MaxConcurrent     int `toml:"max_concurrent"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
	HeartbeatTimeout  int `toml:"heartbeat_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vidingest.
//
// Configuration sections by subsystem:
//   - Paths: storage root, model, state, and log directories
//   - Tools: ffmpeg, ffprobe, and yt-dlp locations
//   - Metadata: primary provider credentials, retry budget, cache TTL
//   - Download: acquisition retry schedule and progress throttling
//   - Models: tier thresholds, forced override, artifact source
//   - Storage: disk safety multiplier and sweep cadence
//   - Audio: extraction options and fallback toggle
//   - Progress: Redis progress publication
//   - Workflow: daemon polling and worker count
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Tools    Tools    `toml:"tools"`
	Metadata Metadata `toml:"metadata"`
	Download Download `toml:"download"`
	Models   Models   `toml:"models"`
	Storage  Storage  `toml:"storage"`
	Audio    Audio    `toml:"audio"`
	Progress Progress `toml:"progress"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadDotEnv(resolvedPath); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv overlays .env files from the working directory and the config
// directory onto the process environment. Variables already set win.
func loadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if dir := filepath.Dir(configPath); dir != "" && dir != "." {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(candidate); err != nil {
			return fmt.Errorf("load %s: %w", candidate, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidingest.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StorageRoot, c.Paths.ModelDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the job queue database location.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// LockPath returns the daemon single-instance lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "vidingest.lock")
}

// MetadataCacheTTL returns the metadata cache lifetime.
func (c *Config) MetadataCacheTTL() time.Duration {
	return time.Duration(c.Metadata.CacheTTLSeconds) * time.Second
}

// MaxVideoDuration returns the longest accepted video.
func (c *Config) MaxVideoDuration() time.Duration {
	return time.Duration(c.Metadata.MaxDurationSeconds) * time.Second
}

// DownloadRetryDelays returns the per-attempt wait schedule. Delay i applies
// after failed attempt i; the last entry repeats when attempts outnumber it.
func (c *Config) DownloadRetryDelays() []time.Duration {
	delays := make([]time.Duration, 0, len(c.Download.RetryDelaysSeconds))
	for _, seconds := range c.Download.RetryDelaysSeconds {
		delays = append(delays, time.Duration(seconds)*time.Second)
	}
	return delays
}

// ProgressInterval returns the minimum spacing between progress updates.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Download.ProgressIntervalSeconds) * time.Second
}

// SweepInterval returns how often the age-based sweep runs.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Storage.SweepIntervalMinutes) * time.Minute
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
