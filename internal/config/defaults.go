package config

const (
	defaultConfigPath              = "~/.config/vidingest/config.toml"
	defaultStorageRoot             = "~/.local/share/vidingest/artifacts"
	defaultModelDir                = "~/.local/share/vidingest/models"
	defaultStateDir                = "~/.local/share/vidingest/state"
	defaultLogDir                  = "~/.local/share/vidingest/logs"
	defaultFFmpegBinary            = "ffmpeg"
	defaultFFprobeBinary           = "ffprobe"
	defaultYtDlpBinary             = "yt-dlp"
	defaultMetadataBaseURL         = "https://www.googleapis.com/youtube/v3"
	defaultMetadataTimeoutSeconds  = 15
	defaultMetadataRetryAttempts   = 3
	defaultMetadataRetryBaseMS     = 500
	defaultMetadataRetryMaxMS      = 8000
	defaultMetadataCacheTTLSeconds = 300
	defaultMaxDurationSeconds      = 4 * 60 * 60
	defaultMetadataRequestsPerSec  = 5
	defaultDownloadRetryAttempts   = 3
	defaultAttemptTimeoutSeconds   = 1800
	defaultProgressIntervalSeconds = 10
	defaultStreamCacheTTLSeconds   = 300
	defaultDownloadFormat          = "bestaudio/best"
	defaultTinyThresholdSeconds    = 600
	defaultBaseThresholdSeconds    = 1800
	defaultModelDownloadBaseURL    = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"
	defaultModelDownloadTimeout    = 900
	defaultSafetyMultiplier        = 2.0
	defaultMaxAgeHours             = 24
	defaultSweepIntervalMinutes    = 30
	defaultAudioTimeoutSeconds     = 1800
	defaultProgressRedisAddr       = "127.0.0.1:6379"
	defaultProgressChannelPrefix   = "video:progress:"
	defaultQueuePollInterval       = 5
	defaultMaxConcurrent           = 2
	defaultHeartbeatInterval       = 15
	defaultHeartbeatTimeout        = 120
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
)

func defaultRetryDelaysSeconds() []int {
	return []int{10, 30}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StorageRoot: defaultStorageRoot,
			ModelDir:    defaultModelDir,
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpegBinary,
			FFprobe: defaultFFprobeBinary,
			YtDlp:   defaultYtDlpBinary,
		},
		Metadata: Metadata{
			BaseURL:            defaultMetadataBaseURL,
			TimeoutSeconds:     defaultMetadataTimeoutSeconds,
			RetryAttempts:      defaultMetadataRetryAttempts,
			RetryBaseDelayMS:   defaultMetadataRetryBaseMS,
			RetryMaxDelayMS:    defaultMetadataRetryMaxMS,
			CacheTTLSeconds:    defaultMetadataCacheTTLSeconds,
			MaxDurationSeconds: defaultMaxDurationSeconds,
			RequestsPerSecond:  defaultMetadataRequestsPerSec,
			FallbackEnabled:    true,
		},
		Download: Download{
			RetryAttempts:           defaultDownloadRetryAttempts,
			RetryDelaysSeconds:      defaultRetryDelaysSeconds(),
			AttemptTimeoutSeconds:   defaultAttemptTimeoutSeconds,
			ProgressIntervalSeconds: defaultProgressIntervalSeconds,
			StreamCacheTTLSeconds:   defaultStreamCacheTTLSeconds,
			Format:                  defaultDownloadFormat,
		},
		Models: Models{
			TinyThresholdSeconds:   defaultTinyThresholdSeconds,
			BaseThresholdSeconds:   defaultBaseThresholdSeconds,
			DownloadBaseURL:        defaultModelDownloadBaseURL,
			DownloadTimeoutSeconds: defaultModelDownloadTimeout,
		},
		Storage: Storage{
			SafetyMultiplier:     defaultSafetyMultiplier,
			MaxAgeHours:          defaultMaxAgeHours,
			SweepIntervalMinutes: defaultSweepIntervalMinutes,
		},
		Audio: Audio{
			ProbeInput:      true,
			FallbackEnabled: true,
			TimeoutSeconds:  defaultAudioTimeoutSeconds,
		},
		Progress: Progress{
			RedisAddr:     defaultProgressRedisAddr,
			ChannelPrefix: defaultProgressChannelPrefix,
		},
		Workflow: Workflow{
			QueuePollInterval: defaultQueuePollInterval,
			MaxConcurrent:     defaultMaxConcurrent,
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
