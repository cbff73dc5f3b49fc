package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeMetadata()
	c.normalizeDownload()
	c.normalizeModels()
	c.normalizeStorage()
	c.normalizeProgress()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StorageRoot) == "" {
		c.Paths.StorageRoot = defaultStorageRoot
	}
	if c.Paths.StorageRoot, err = expandPath(c.Paths.StorageRoot); err != nil {
		return fmt.Errorf("paths.storage_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.ModelDir) == "" {
		c.Paths.ModelDir = defaultModelDir
	}
	if c.Paths.ModelDir, err = expandPath(c.Paths.ModelDir); err != nil {
		return fmt.Errorf("paths.model_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = defaultFFmpegBinary
	}
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	if c.Tools.FFprobe == "" {
		c.Tools.FFprobe = defaultFFprobeBinary
	}
	c.Tools.YtDlp = strings.TrimSpace(c.Tools.YtDlp)
	if c.Tools.YtDlp == "" {
		c.Tools.YtDlp = defaultYtDlpBinary
	}
}

func (c *Config) normalizeMetadata() {
	c.Metadata.APIKey = strings.TrimSpace(c.Metadata.APIKey)
	if c.Metadata.APIKey == "" {
		if value, ok := os.LookupEnv("YOUTUBE_API_KEY"); ok {
			c.Metadata.APIKey = strings.TrimSpace(value)
		}
	}
	c.Metadata.BaseURL = strings.TrimRight(strings.TrimSpace(c.Metadata.BaseURL), "/")
	if c.Metadata.BaseURL == "" {
		c.Metadata.BaseURL = defaultMetadataBaseURL
	}
	if c.Metadata.TimeoutSeconds <= 0 {
		c.Metadata.TimeoutSeconds = defaultMetadataTimeoutSeconds
	}
	if c.Metadata.RetryMaxDelayMS < c.Metadata.RetryBaseDelayMS {
		c.Metadata.RetryMaxDelayMS = c.Metadata.RetryBaseDelayMS
	}
}

func (c *Config) normalizeDownload() {
	if len(c.Download.RetryDelaysSeconds) == 0 {
		c.Download.RetryDelaysSeconds = defaultRetryDelaysSeconds()
	}
	c.Download.Format = strings.TrimSpace(c.Download.Format)
	if c.Download.Format == "" {
		c.Download.Format = defaultDownloadFormat
	}
}

func (c *Config) normalizeModels() {
	c.Models.ForcedTier = strings.ToLower(strings.TrimSpace(c.Models.ForcedTier))
	c.Models.DownloadBaseURL = strings.TrimRight(strings.TrimSpace(c.Models.DownloadBaseURL), "/")
	if c.Models.DownloadBaseURL == "" {
		c.Models.DownloadBaseURL = defaultModelDownloadBaseURL
	}
	if c.Models.DownloadTimeoutSeconds <= 0 {
		c.Models.DownloadTimeoutSeconds = defaultModelDownloadTimeout
	}
}

func (c *Config) normalizeStorage() {
	if c.Storage.SafetyMultiplier == 0 {
		c.Storage.SafetyMultiplier = defaultSafetyMultiplier
	}
}

func (c *Config) normalizeProgress() {
	if value, ok := os.LookupEnv("VIDINGEST_REDIS_ADDR"); ok && strings.TrimSpace(value) != "" {
		c.Progress.RedisAddr = strings.TrimSpace(value)
		c.Progress.RedisEnabled = true
	}
	if c.Progress.RedisPassword == "" {
		if value, ok := os.LookupEnv("VIDINGEST_REDIS_PASSWORD"); ok {
			c.Progress.RedisPassword = value
		}
	}
	c.Progress.RedisAddr = strings.TrimSpace(c.Progress.RedisAddr)
	if c.Progress.RedisAddr == "" {
		c.Progress.RedisAddr = defaultProgressRedisAddr
	}
	if strings.TrimSpace(c.Progress.ChannelPrefix) == "" {
		c.Progress.ChannelPrefix = defaultProgressChannelPrefix
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
