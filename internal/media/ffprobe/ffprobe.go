package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"vidingest/internal/services/command"
)

var probeArgs = []string{"-v", "error", "-hide_banner", "-print_format", "json", "-show_format", "-show_streams"}

// Result is the subset of ffprobe's JSON report the audio engine reads.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  struct {
		Name     string `json:"format_name"`
		Duration string `json:"duration"`
	} `json:"format"`
}

// Stream is one elementary stream of the probed container.
type Stream struct {
	Index      int    `json:"index"`
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Duration   string `json:"duration"`
}

// IsAudio reports whether the stream carries audio.
func (s Stream) IsAudio() bool {
	return strings.EqualFold(s.CodecType, "audio")
}

// SampleRateHz parses the stream's sample rate; zero when absent.
func (s Stream) SampleRateHz() int {
	hz, _ := strconv.Atoi(strings.TrimSpace(s.SampleRate))
	return hz
}

// Inspect runs ffprobe on path through exec (the real binary when nil).
func Inspect(ctx context.Context, exec command.Executor, binary, path string) (Result, error) {
	if strings.TrimSpace(path) == "" {
		return Result{}, errors.New("ffprobe: empty path")
	}
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	if exec == nil {
		exec = command.NewExecutor()
	}
	args := append(append([]string(nil), probeArgs...), "--", path)
	out, err := exec.Run(ctx, command.Spec{Binary: binary, Args: args})
	if err != nil {
		if msg := strings.TrimSpace(out.Stderr); msg != "" {
			return Result{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, msg)
		}
		return Result{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	var result Result
	if err := json.Unmarshal([]byte(out.Stdout), &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe %s: decode report: %w", path, err)
	}
	return result, nil
}

// FirstAudioStream returns the lowest-indexed audio stream.
func (r Result) FirstAudioStream() (Stream, bool) {
	for _, s := range r.Streams {
		if s.IsAudio() {
			return s, true
		}
	}
	return Stream{}, false
}

// DurationSeconds is the container duration, falling back to the longest
// stream when the container does not report one. Zero means unknown.
func (r Result) DurationSeconds() float64 {
	if d := seconds(r.Format.Duration); d > 0 {
		return d
	}
	var longest float64
	for _, s := range r.Streams {
		longest = max(longest, seconds(s.Duration))
	}
	return longest
}

func seconds(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
