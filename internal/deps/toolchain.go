package deps

import (
	"fmt"
	"strings"

	"vidingest/internal/config"
)

// Toolchain holds the executables resolved once at startup. Components receive
// these paths and never search for binaries themselves.
type Toolchain struct {
	FFmpeg  string
	FFprobe string
	YtDlp   string
}

// Requirements lists the executables the pipeline needs for cfg.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Tools.FFmpeg,
			Description: "Required for Whisper audio transcoding",
		},
		{
			Name:        "yt-dlp",
			Command:     cfg.Tools.YtDlp,
			Description: "Required for media download and fallback extraction",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Tools.FFprobe,
			Description: "Validates uploaded media has an audio stream",
			Optional:    !cfg.Audio.ProbeInput,
		},
	}
}

// ResolveToolchain validates every configured executable and returns their
// absolute paths. Missing optional tools resolve to an empty path.
func ResolveToolchain(cfg *config.Config) (Toolchain, []Status, error) {
	if cfg == nil {
		return Toolchain{}, nil, fmt.Errorf("resolve toolchain: config is nil")
	}
	statuses := CheckBinaries(Requirements(cfg))
	var tools Toolchain
	var missing []string
	for _, status := range statuses {
		if !status.Available {
			if !status.Optional {
				missing = append(missing, fmt.Sprintf("%s (%s)", status.Name, status.Detail))
			}
			continue
		}
		switch status.Name {
		case "FFmpeg":
			tools.FFmpeg = status.Command
		case "yt-dlp":
			tools.YtDlp = status.Command
		case "FFprobe":
			tools.FFprobe = status.Command
		}
	}
	if len(missing) > 0 {
		return tools, statuses, fmt.Errorf("required tools unavailable: %s", strings.Join(missing, "; "))
	}
	return tools, statuses, nil
}
