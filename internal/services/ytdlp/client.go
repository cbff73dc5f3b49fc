package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vidingest/internal/services"
	"vidingest/internal/services/command"
)

const progressMarker = "[vidingest]"

// progressTemplate emits one machine-readable line per progress tick:
// downloaded, total, estimated total, speed (bytes/s), eta (s). Missing
// values print as NA.
const progressTemplate = "download:" + progressMarker +
	" %(progress.downloaded_bytes)s %(progress.total_bytes)s %(progress.total_bytes_estimate)s %(progress.speed)s %(progress.eta)s"

// Progress is one parsed download progress tick.
type Progress struct {
	Downloaded int64
	Total      int64
	Speed      float64
	ETA        time.Duration
}

// Percent returns completion in [0,100], or 0 when the total is unknown.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	pct := float64(p.Downloaded) / float64(p.Total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec command.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithFFmpegLocation points yt-dlp at the resolved ffmpeg binary.
func WithFFmpegLocation(path string) Option {
	return func(c *Client) {
		c.ffmpeg = strings.TrimSpace(path)
	}
}

// Client wraps yt-dlp CLI interactions.
type Client struct {
	binary string
	ffmpeg string
	exec   command.Executor
}

// New constructs a yt-dlp client for an already resolved binary path.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("yt-dlp binary required")
	}
	client := &Client{binary: binary, exec: command.NewExecutor()}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Binary returns the executable path.
func (c *Client) Binary() string {
	return c.binary
}

// DumpJSON runs a metadata-only extraction and decodes the single-video JSON.
func (c *Client) DumpJSON(ctx context.Context, videoURL, externalID string) (*Info, error) {
	const op = "yt-dlp dump json"
	args := []string{
		"--dump-single-json",
		"--skip-download",
		"--no-playlist",
		"--no-warnings",
		videoURL,
	}
	result, err := c.exec.Run(ctx, command.Spec{Binary: c.binary, Args: args})
	if err != nil {
		return nil, Classify(ctx, op, externalID, result.Stderr, err)
	}
	var info Info
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		return nil, services.ToolFailure(op, "yt-dlp", result.Stderr, fmt.Errorf("decode json: %w", err))
	}
	return &info, nil
}

// DownloadRequest describes one media download.
type DownloadRequest struct {
	URL        string
	ExternalID string
	// OutputTemplate is an absolute yt-dlp output template, e.g. /dir/name.%(ext)s.
	OutputTemplate string
	Format         string
	// ExtractAudio converts the result to 16kHz mono WAV with yt-dlp's
	// ffmpeg post-processor.
	ExtractAudio bool
	OnProgress   func(Progress)
}

// Download fetches media and returns the final on-disk path reported by yt-dlp.
func (c *Client) Download(ctx context.Context, req DownloadRequest) (string, error) {
	op := "yt-dlp download"
	if req.ExtractAudio {
		op = "yt-dlp extract audio"
	}
	if strings.TrimSpace(req.OutputTemplate) == "" {
		return "", services.InvalidArgument(op, "output_template", "must not be empty")
	}
	args := c.downloadArgs(req)

	var finalPath string
	onLine := func(line string) {
		if update, ok := ParseProgress(line); ok {
			if req.OnProgress != nil {
				req.OnProgress(update)
			}
			return
		}
		trimmed := strings.TrimSpace(line)
		if filepath.IsAbs(trimmed) {
			finalPath = trimmed
		}
	}
	result, err := c.exec.Run(ctx, command.Spec{
		Binary:   c.binary,
		Args:     args,
		OnStdout: onLine,
		OnStderr: func(line string) {
			if update, ok := ParseProgress(line); ok && req.OnProgress != nil {
				req.OnProgress(update)
			}
		},
	})
	if err != nil {
		return "", Classify(ctx, op, req.ExternalID, result.Stderr, err)
	}
	if finalPath == "" {
		finalPath = lastAbsPath(result.Stdout)
	}
	if finalPath == "" {
		return "", services.ToolFailure(op, "yt-dlp", result.Stderr, errors.New("yt-dlp did not report an output path"))
	}
	return finalPath, nil
}

func (c *Client) downloadArgs(req DownloadRequest) []string {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--newline",
		"--progress",
		"--progress-template", progressTemplate,
		"--print", "after_move:filepath",
		"-o", req.OutputTemplate,
	}
	if c.ffmpeg != "" {
		args = append(args, "--ffmpeg-location", c.ffmpeg)
	}
	if req.ExtractAudio {
		args = append(args,
			"-f", "bestaudio/best",
			"-x",
			"--audio-format", "wav",
			"--postprocessor-args", "ExtractAudio+ffmpeg_o:-ac 1 -ar 16000 -c:a pcm_s16le",
		)
	} else if format := strings.TrimSpace(req.Format); format != "" {
		args = append(args, "-f", format)
	}
	return append(args, req.URL)
}

// ParseProgress decodes a line produced by the progress template.
func ParseProgress(line string) (Progress, bool) {
	line = strings.TrimSpace(line)
	idx := strings.Index(line, progressMarker)
	if idx < 0 {
		return Progress{}, false
	}
	fields := strings.Fields(line[idx+len(progressMarker):])
	if len(fields) < 5 {
		return Progress{}, false
	}
	downloaded, ok := parseNumber(fields[0])
	if !ok {
		return Progress{}, false
	}
	update := Progress{Downloaded: int64(downloaded)}
	if total, ok := parseNumber(fields[1]); ok && total > 0 {
		update.Total = int64(total)
	} else if estimate, ok := parseNumber(fields[2]); ok && estimate > 0 {
		update.Total = int64(estimate)
	}
	if speed, ok := parseNumber(fields[3]); ok {
		update.Speed = speed
	}
	if eta, ok := parseNumber(fields[4]); ok {
		update.ETA = time.Duration(eta * float64(time.Second))
	}
	return update, true
}

func parseNumber(value string) (float64, bool) {
	if value == "" || strings.EqualFold(value, "NA") || strings.EqualFold(value, "None") {
		return 0, false
	}
	n, err := strconv.ParseFloat(value, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func lastAbsPath(stdout string) string {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if filepath.IsAbs(line) && !strings.Contains(line, progressMarker) {
			return line
		}
	}
	return ""
}
