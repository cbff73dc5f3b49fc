package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidingest/internal/acquisition"
	"vidingest/internal/config"
	"vidingest/internal/deps"
	"vidingest/internal/logging"
	"vidingest/internal/media/ffprobe"
	"vidingest/internal/services"
	"vidingest/internal/services/command"
	"vidingest/internal/services/youtube"
	"vidingest/internal/services/ytdlp"
)

// Whisper input format: mono, 16 kHz, signed 16-bit PCM in a WAV container.
const (
	SampleRate = 16000
	Channels   = 1
	Codec      = "pcm_s16le"
)

// WhisperArgs returns the ffmpeg arguments that transcode src into the
// fixed transcription format at dst. The parameters never depend on the
// source codec or container.
func WhisperArgs(src, dst string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-i", src,
		"-vn", "-sn", "-dn",
		"-ac", fmt.Sprint(Channels),
		"-ar", fmt.Sprint(SampleRate),
		"-c:a", Codec,
		"-f", "wav",
		dst,
	}
}

// Acquirer downloads media for a video.
type Acquirer interface {
	DownloadVideo(ctx context.Context, externalID string, sink acquisition.ProgressSink) (string, error)
}

// DirectExtractor pulls audio without a full video download.
type DirectExtractor interface {
	Download(ctx context.Context, req ytdlp.DownloadRequest) (string, error)
}

// PathGenerator allocates artifact paths.
type PathGenerator interface {
	GeneratePath(videoID, extension string) (string, error)
}

// Options configures an Engine.
type Options struct {
	FFmpeg          string
	FFprobe         string
	ProbeInput      bool
	FallbackEnabled bool
	Timeout         time.Duration
}

// OptionsFromConfig combines the audio section with the resolved toolchain.
func OptionsFromConfig(cfg *config.Config, tools deps.Toolchain) Options {
	return Options{
		FFmpeg:          tools.FFmpeg,
		FFprobe:         tools.FFprobe,
		ProbeInput:      cfg.Audio.ProbeInput && tools.FFprobe != "",
		FallbackEnabled: cfg.Audio.FallbackEnabled,
		Timeout:         time.Duration(cfg.Audio.TimeoutSeconds) * time.Second,
	}
}

// Engine turns downloaded or uploaded media into transcription-ready audio.
type Engine struct {
	opts      Options
	acquirer  Acquirer
	extractor DirectExtractor
	paths     PathGenerator
	exec      command.Executor
	logger    *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec command.Executor) Option {
	return func(e *Engine) {
		if exec != nil {
			e.exec = exec
		}
	}
}

// NewEngine wires an engine. extractor may be nil to disable the direct
// extraction fallback.
func NewEngine(opts Options, acquirer Acquirer, extractor DirectExtractor, paths PathGenerator, logger *slog.Logger, options ...Option) *Engine {
	if strings.TrimSpace(opts.FFmpeg) == "" {
		opts.FFmpeg = "ffmpeg"
	}
	engine := &Engine{
		opts:      opts,
		acquirer:  acquirer,
		extractor: extractor,
		paths:     paths,
		exec:      command.NewExecutor(),
		logger:    logging.NewComponentLogger(logger, "audio"),
	}
	for _, option := range options {
		option(engine)
	}
	return engine
}

// ExtractFromURL downloads the video and converts it to Whisper audio. When
// the download is refused with an access-denied signature the engine makes
// one direct audio extraction attempt instead.
func (e *Engine) ExtractFromURL(ctx context.Context, externalID string, sink acquisition.ProgressSink) (string, error) {
	id, err := youtube.ParseVideoID(externalID)
	if err != nil {
		return "", err
	}
	videoPath, err := e.acquirer.DownloadVideo(ctx, id, sink)
	if err == nil {
		return e.ExtractWhisperAudio(ctx, videoPath, id)
	}
	if !services.IsKind(err, services.KindAccessDenied) || !e.opts.FallbackEnabled || e.extractor == nil {
		return "", err
	}

	logging.WarnWithContext(e.logger, "download denied; extracting audio directly", "audio_fallback",
		logging.String(logging.FieldVideoID, id),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "refresh yt-dlp or configure cookies if this persists"),
		logging.String(logging.FieldImpact, "audio is fetched without the full video"),
	)
	return e.extractDirect(ctx, id)
}

func (e *Engine) extractDirect(ctx context.Context, id string) (string, error) {
	template, err := e.paths.GeneratePath(id, "%(ext)s")
	if err != nil {
		return "", fmt.Errorf("direct extraction: %w", err)
	}
	rawPath, err := e.extractor.Download(ctx, ytdlp.DownloadRequest{
		URL:            youtube.WatchURL(id),
		ExternalID:     id,
		OutputTemplate: template,
		ExtractAudio:   true,
	})
	if err != nil {
		return "", err
	}
	// yt-dlp's post-processor output is re-encoded so the format guarantee
	// does not depend on its ffmpeg arguments being honoured.
	return e.ExtractWhisperAudio(ctx, rawPath, id)
}

// ExtractWhisperAudio transcodes videoPath into the artifact directory of
// videoID. On success the intermediate media is deleted best-effort.
func (e *Engine) ExtractWhisperAudio(ctx context.Context, videoPath, videoID string) (string, error) {
	out, err := e.transcode(ctx, videoPath, videoID)
	if err != nil {
		return "", err
	}
	if err := os.Remove(videoPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(e.logger, "failed to remove intermediate media", "intermediate_cleanup_failed",
			logging.String(logging.FieldVideoID, videoID),
			logging.String("path", videoPath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "space is reclaimed by the next age-based sweep"),
		)
	}
	return out, nil
}

// ExtractFromVideoFile transcodes a user-supplied file. The source is never
// modified or removed.
func (e *Engine) ExtractFromVideoFile(ctx context.Context, videoPath string) (string, error) {
	return e.transcode(ctx, videoPath, uploadID(videoPath))
}

func (e *Engine) transcode(ctx context.Context, src, videoID string) (string, error) {
	const op = "extract audio"
	info, err := os.Stat(src)
	if err != nil {
		return "", services.InvalidArgument(op, "video_path", fmt.Sprintf("cannot read %s: %v", src, err))
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return "", services.InvalidArgument(op, "video_path", src+" is not a non-empty regular file")
	}
	if e.opts.ProbeInput {
		if err := e.probe(ctx, src); err != nil {
			return "", err
		}
	}

	dest, err := e.paths.GeneratePath(videoID, "wav")
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	tmp := dest + ".part"

	runCtx := ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}
	started := time.Now()
	result, err := e.exec.Run(runCtx, command.Spec{Binary: e.opts.FFmpeg, Args: WhisperArgs(src, tmp)})
	if err != nil {
		_ = os.Remove(tmp)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if runCtx.Err() != nil {
			return "", services.Timeout(op, videoID, fmt.Errorf("ffmpeg exceeded %s", e.opts.Timeout))
		}
		return "", services.ToolFailure(op, "ffmpeg", result.Stderr, err)
	}

	out, err := os.Stat(tmp)
	if err != nil || out.Size() == 0 {
		_ = os.Remove(tmp)
		return "", services.ToolFailure(op, "ffmpeg", result.Stderr, errors.New("ffmpeg produced no audio"))
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%s: finalize output: %w", op, err)
	}
	e.logger.Info("audio extracted",
		logging.String(logging.FieldVideoID, videoID),
		logging.String("source", src),
		logging.String("output", dest),
		logging.Int64("bytes", out.Size()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return dest, nil
}

func (e *Engine) probe(ctx context.Context, src string) error {
	result, err := ffprobe.Inspect(ctx, e.exec, e.opts.FFprobe, src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.ToolFailure("probe input", "ffprobe", "", err)
	}
	if _, ok := result.FirstAudioStream(); !ok {
		return services.Validation("probe input", "audio_stream", "input has no audio stream")
	}
	return nil
}

func uploadID(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = strings.TrimSpace(stem)
	if stem == "" || stem == "." {
		stem = "file"
	}
	return "upload-" + stem
}

// ProbeDuration reports the media duration of path in seconds.
func (e *Engine) ProbeDuration(ctx context.Context, path string) (float64, error) {
	result, err := ffprobe.Inspect(ctx, e.exec, e.opts.FFprobe, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, services.ToolFailure("probe duration", "ffprobe", "", err)
	}
	seconds := result.DurationSeconds()
	if seconds <= 0 {
		return 0, services.Validation("probe duration", "duration", "media reports no duration")
	}
	return seconds, nil
}
