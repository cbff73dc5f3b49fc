package config

import (
	"errors"
	"fmt"
	"slices"
)

// ModelTiers lists the recognized transcription model tiers from smallest to largest.
var ModelTiers = []string{"tiny", "base", "small", "medium", "large"}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMetadata(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateModels(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateMetadata() error {
	if err := ensurePositiveMap(map[string]int{
		"metadata.timeout_seconds":      c.Metadata.TimeoutSeconds,
		"metadata.retry_attempts":       c.Metadata.RetryAttempts,
		"metadata.cache_ttl_seconds":    c.Metadata.CacheTTLSeconds,
		"metadata.max_duration_seconds": c.Metadata.MaxDurationSeconds,
	}); err != nil {
		return err
	}
	if c.Metadata.RetryBaseDelayMS < 0 {
		return errors.New("metadata.retry_base_delay_ms must be >= 0")
	}
	if c.Metadata.RequestsPerSecond < 0 {
		return errors.New("metadata.requests_per_second must be >= 0")
	}
	return nil
}

func (c *Config) validateDownload() error {
	if err := ensurePositiveMap(map[string]int{
		"download.retry_attempts":            c.Download.RetryAttempts,
		"download.attempt_timeout_seconds":   c.Download.AttemptTimeoutSeconds,
		"download.stream_cache_ttl_seconds":  c.Download.StreamCacheTTLSeconds,
		"download.progress_interval_seconds": c.Download.ProgressIntervalSeconds,
	}); err != nil {
		return err
	}
	if waits := c.Download.RetryAttempts - 1; len(c.Download.RetryDelaysSeconds) > waits {
		return fmt.Errorf("download.retry_delays_seconds has %d entries but %d attempts allow only %d waits",
			len(c.Download.RetryDelaysSeconds), c.Download.RetryAttempts, waits)
	}
	for i, delay := range c.Download.RetryDelaysSeconds {
		if delay < 0 {
			return fmt.Errorf("download.retry_delays_seconds[%d] must be >= 0", i)
		}
	}
	return nil
}

func (c *Config) validateModels() error {
	if c.Models.TinyThresholdSeconds < 0 {
		return errors.New("models.tiny_threshold_seconds must be >= 0")
	}
	if c.Models.BaseThresholdSeconds < c.Models.TinyThresholdSeconds {
		return errors.New("models.base_threshold_seconds must be >= models.tiny_threshold_seconds")
	}
	if c.Models.ForcedTier != "" && !slices.Contains(ModelTiers, c.Models.ForcedTier) {
		return fmt.Errorf("models.forced_tier %q is not one of %v", c.Models.ForcedTier, ModelTiers)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.SafetyMultiplier < 1 {
		return errors.New("storage.safety_multiplier must be >= 1")
	}
	if c.Storage.MaxAgeHours <= 0 {
		return errors.New("storage.max_age_hours must be positive")
	}
	if c.Storage.SweepIntervalMinutes <= 0 {
		return errors.New("storage.sweep_interval_minutes must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval": c.Workflow.QueuePollInterval,
		"workflow.max_concurrent":      c.Workflow.MaxConcurrent,
		"workflow.heartbeat_interval":  c.Workflow.HeartbeatInterval,
		"workflow.heartbeat_timeout":   c.Workflow.HeartbeatTimeout,
		"audio.timeout_seconds":        c.Audio.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
