package audio_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"vidingest/internal/acquisition"
	"vidingest/internal/audio"
	"vidingest/internal/services"
	"vidingest/internal/services/command"
	"vidingest/internal/services/ytdlp"
	"vidingest/internal/storage"
)

const videoID = "dQw4w9WgXcQ"

type fakeAcquirer struct {
	calls atomic.Int32
	fn    func(ctx context.Context, id string) (string, error)
}

func (f *fakeAcquirer) DownloadVideo(ctx context.Context, id string, _ acquisition.ProgressSink) (string, error) {
	f.calls.Add(1)
	return f.fn(ctx, id)
}

type fakeExtractor struct {
	calls atomic.Int32
	req   ytdlp.DownloadRequest
	fn    func(req ytdlp.DownloadRequest) (string, error)
}

func (f *fakeExtractor) Download(_ context.Context, req ytdlp.DownloadRequest) (string, error) {
	f.calls.Add(1)
	f.req = req
	return f.fn(req)
}

// ffmpegWriting writes a fake WAV to the last argument.
func ffmpegWriting(content string) *command.Recorder {
	return &command.Recorder{Handler: func(ctx context.Context, spec command.Spec) (command.Result, error) {
		dst := spec.Args[len(spec.Args)-1]
		if err := os.WriteFile(dst, []byte(content), 0o644); err != nil {
			return command.Result{}, err
		}
		return command.Result{}, nil
	}}
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func newEngine(t *testing.T, opts audio.Options, acq audio.Acquirer, ext audio.DirectExtractor, exec command.Executor) (*audio.Engine, *storage.Manager) {
	t.Helper()
	store := storage.NewManager(t.TempDir(), 2, nil)
	if opts.FFmpeg == "" {
		opts.FFmpeg = "ffmpeg"
	}
	return audio.NewEngine(opts, acq, ext, store, nil, audio.WithExecutor(exec)), store
}

func assertWhisperArgs(t *testing.T, call command.Call, src string) {
	t.Helper()
	args := strings.Join(call.Args, " ")
	for _, want := range []string{"-i " + src, "-ac 1", "-ar 16000", "-c:a pcm_s16le", "-f wav", "-vn"} {
		if !strings.Contains(args, want) {
			t.Fatalf("ffmpeg args %q missing %q", args, want)
		}
	}
}

func TestWhisperArgsAreFixed(t *testing.T) {
	for _, src := range []string{"in.webm", "in.m4a", "in.mp4", "in.opus", "in.mkv"} {
		args := audio.WhisperArgs(src, "out.wav")
		assertWhisperArgs(t, command.Call{Binary: "ffmpeg", Args: args}, src)
		if args[len(args)-1] != "out.wav" {
			t.Fatalf("destination should be last, got %v", args)
		}
	}
}

func TestExtractFromURLTranscodesAndRemovesIntermediate(t *testing.T) {
	dir := t.TempDir()
	video := writeFile(t, filepath.Join(dir, "video.webm"), "media")
	acq := &fakeAcquirer{fn: func(context.Context, string) (string, error) { return video, nil }}
	rec := ffmpegWriting("RIFFdata")
	engine, store := newEngine(t, audio.Options{}, acq, nil, rec)

	out, err := engine.ExtractFromURL(context.Background(), "https://youtu.be/"+videoID, nil)
	if err != nil {
		t.Fatalf("ExtractFromURL: %v", err)
	}
	if filepath.Ext(out) != ".wav" {
		t.Fatalf("expected wav output, got %s", out)
	}
	if filepath.Dir(out) != store.VideoDir(videoID) {
		t.Fatalf("output %s not in %s", out, store.VideoDir(videoID))
	}
	if data, err := os.ReadFile(out); err != nil || string(data) != "RIFFdata" {
		t.Fatalf("output content = %q, %v", data, err)
	}
	if _, err := os.Stat(video); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("intermediate video should be removed, stat err = %v", err)
	}
	calls := rec.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one ffmpeg call, got %d", len(calls))
	}
	assertWhisperArgs(t, calls[0], video)
	if _, err := os.Stat(out + ".part"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temporary output left behind")
	}
}

func TestExtractFromURLToolFailureIsNotRetried(t *testing.T) {
	dir := t.TempDir()
	video := writeFile(t, filepath.Join(dir, "video.webm"), "media")
	acq := &fakeAcquirer{fn: func(context.Context, string) (string, error) { return video, nil }}
	rec := &command.Recorder{Handler: func(context.Context, command.Spec) (command.Result, error) {
		stderr := "Invalid data found when processing input"
		return command.Result{Stderr: stderr, ExitCode: 1}, &command.ExitError{Binary: "ffmpeg", ExitCode: 1, Stderr: stderr}
	}}
	engine, _ := newEngine(t, audio.Options{}, acq, nil, rec)

	_, err := engine.ExtractFromURL(context.Background(), videoID, nil)
	if !services.IsKind(err, services.KindToolFailure) {
		t.Fatalf("expected tool failure, got %v", err)
	}
	var svcErr *services.Error
	if !errors.As(err, &svcErr) || !strings.Contains(svcErr.Stderr, "Invalid data") {
		t.Fatalf("expected stderr on error, got %#v", svcErr)
	}
	if len(rec.Calls()) != 1 {
		t.Fatalf("ffmpeg should run once, ran %d times", len(rec.Calls()))
	}
	if _, err := os.Stat(video); err != nil {
		t.Fatalf("source should survive a failed transcode: %v", err)
	}
}

func TestExtractFromURLEmptyOutputFails(t *testing.T) {
	dir := t.TempDir()
	video := writeFile(t, filepath.Join(dir, "video.webm"), "media")
	acq := &fakeAcquirer{fn: func(context.Context, string) (string, error) { return video, nil }}
	engine, store := newEngine(t, audio.Options{}, acq, nil, ffmpegWriting(""))

	_, err := engine.ExtractFromURL(context.Background(), videoID, nil)
	if !services.IsKind(err, services.KindToolFailure) {
		t.Fatalf("expected tool failure, got %v", err)
	}
	entries, _ := os.ReadDir(store.VideoDir(videoID))
	if len(entries) != 0 {
		t.Fatalf("expected no artifacts, found %d", len(entries))
	}
}

func TestExtractFromURLFallsBackOnAccessDenied(t *testing.T) {
	denied := services.AccessDenied("download video", videoID, errors.New("HTTP Error 403: Forbidden"))
	acq := &fakeAcquirer{fn: func(context.Context, string) (string, error) { return "", denied }}
	ext := &fakeExtractor{}
	ext.fn = func(req ytdlp.DownloadRequest) (string, error) {
		path := strings.Replace(req.OutputTemplate, "%(ext)s", "wav", 1)
		return writeFile(t, path, "raw"), nil
	}
	rec := ffmpegWriting("RIFFnormalized")
	engine, _ := newEngine(t, audio.Options{FallbackEnabled: true}, acq, ext, rec)

	out, err := engine.ExtractFromURL(context.Background(), videoID, nil)
	if err != nil {
		t.Fatalf("ExtractFromURL: %v", err)
	}
	if acq.calls.Load() != 1 || ext.calls.Load() != 1 {
		t.Fatalf("expected one download and one fallback, got %d/%d", acq.calls.Load(), ext.calls.Load())
	}
	if !ext.req.ExtractAudio {
		t.Fatalf("fallback must request audio extraction")
	}
	calls := rec.Calls()
	if len(calls) != 1 {
		t.Fatalf("fallback output must be normalized once, got %d calls", len(calls))
	}
	assertWhisperArgs(t, calls[0], strings.Replace(ext.req.OutputTemplate, "%(ext)s", "wav", 1))
	if data, _ := os.ReadFile(out); string(data) != "RIFFnormalized" {
		t.Fatalf("unexpected output %q", data)
	}
}

func TestExtractFromURLFallbackFailureSurfaces(t *testing.T) {
	denied := services.AccessDenied("download video", videoID, errors.New("Sign in to confirm you're not a bot"))
	acq := &fakeAcquirer{fn: func(context.Context, string) (string, error) { return "", denied }}
	ext := &fakeExtractor{fn: func(ytdlp.DownloadRequest) (string, error) {
		return "", services.AccessDenied("extract audio", videoID, errors.New("still denied"))
	}}
	engine, _ := newEngine(t, audio.Options{FallbackEnabled: true}, acq, ext, ffmpegWriting("x"))

	_, err := engine.ExtractFromURL(context.Background(), videoID, nil)
	if !services.IsKind(err, services.KindAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
	if ext.calls.Load() != 1 {
		t.Fatalf("fallback must run exactly once, ran %d", ext.calls.Load())
	}
}

func TestExtractFromURLNoFallbackForOtherKinds(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback bool
	}{
		{name: "not found", err: services.NotFound("download video", videoID, services.ReasonDeleted, nil), fallback: true},
		{name: "exhausted", err: services.Exhausted("download video", videoID, 3, services.Transient("download video", videoID, errors.New("reset"))), fallback: true},
		{name: "fallback disabled", err: services.AccessDenied("download video", videoID, nil), fallback: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acq := &fakeAcquirer{fn: func(context.Context, string) (string, error) { return "", tt.err }}
			ext := &fakeExtractor{fn: func(ytdlp.DownloadRequest) (string, error) { return "", errors.New("unexpected") }}
			engine, _ := newEngine(t, audio.Options{FallbackEnabled: tt.fallback}, acq, ext, ffmpegWriting("x"))

			_, err := engine.ExtractFromURL(context.Background(), videoID, nil)
			if services.KindOf(err) != services.KindOf(tt.err) {
				t.Fatalf("expected kind %s, got %v", services.KindOf(tt.err), err)
			}
			if ext.calls.Load() != 0 {
				t.Fatalf("fallback should not run")
			}
		})
	}
}

func TestExtractFromURLRejectsMalformedID(t *testing.T) {
	acq := &fakeAcquirer{fn: func(context.Context, string) (string, error) { return "", errors.New("unexpected") }}
	engine, _ := newEngine(t, audio.Options{}, acq, nil, ffmpegWriting("x"))
	_, err := engine.ExtractFromURL(context.Background(), "not a video", nil)
	if !services.IsKind(err, services.KindInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if acq.calls.Load() != 0 {
		t.Fatalf("download should not start")
	}
}

func TestExtractFromVideoFileKeepsSource(t *testing.T) {
	for _, name := range []string{"talk.mp4", "podcast.m4a", "clip.webm"} {
		t.Run(name, func(t *testing.T) {
			src := writeFile(t, filepath.Join(t.TempDir(), name), "media")
			rec := ffmpegWriting("RIFF")
			engine, _ := newEngine(t, audio.Options{}, nil, nil, rec)

			out, err := engine.ExtractFromVideoFile(context.Background(), src)
			if err != nil {
				t.Fatalf("ExtractFromVideoFile: %v", err)
			}
			if _, err := os.Stat(src); err != nil {
				t.Fatalf("source must be kept: %v", err)
			}
			if !strings.HasSuffix(out, ".wav") {
				t.Fatalf("unexpected output %s", out)
			}
			assertWhisperArgs(t, rec.Calls()[0], src)
		})
	}
}

func TestExtractFromVideoFileMissingSource(t *testing.T) {
	rec := ffmpegWriting("RIFF")
	engine, _ := newEngine(t, audio.Options{}, nil, nil, rec)
	_, err := engine.ExtractFromVideoFile(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	if !services.IsKind(err, services.KindInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if len(rec.Calls()) != 0 {
		t.Fatalf("ffmpeg should not run")
	}
}

func TestProbeRejectsInputWithoutAudio(t *testing.T) {
	src := writeFile(t, filepath.Join(t.TempDir(), "silent.mp4"), "media")
	rec := &command.Recorder{Handler: func(ctx context.Context, spec command.Spec) (command.Result, error) {
		if spec.Binary == "ffprobe" {
			return command.Result{Stdout: `{"streams":[{"index":0,"codec_type":"video","codec_name":"h264"}],"format":{}}`}, nil
		}
		return command.Result{}, errors.New("ffmpeg should not run")
	}}
	engine, _ := newEngine(t, audio.Options{ProbeInput: true, FFprobe: "ffprobe"}, nil, nil, rec)

	_, err := engine.ExtractFromVideoFile(context.Background(), src)
	var svcErr *services.Error
	if !errors.As(err, &svcErr) || svcErr.Kind != services.KindValidation || svcErr.Field != "audio_stream" {
		t.Fatalf("expected audio_stream validation error, got %v", err)
	}
	calls := rec.Calls()
	if len(calls) != 1 || calls[0].Binary != "ffprobe" {
		t.Fatalf("expected only the probe, got %v", calls)
	}
}

func TestProbeAcceptsInputWithAudio(t *testing.T) {
	src := writeFile(t, filepath.Join(t.TempDir(), "talk.mp4"), "media")
	rec := &command.Recorder{Handler: func(ctx context.Context, spec command.Spec) (command.Result, error) {
		if spec.Binary == "ffprobe" {
			return command.Result{Stdout: `{"streams":[{"index":1,"codec_type":"audio","codec_name":"aac"}],"format":{}}`}, nil
		}
		return command.Result{}, os.WriteFile(spec.Args[len(spec.Args)-1], []byte("RIFF"), 0o644)
	}}
	engine, _ := newEngine(t, audio.Options{ProbeInput: true, FFprobe: "ffprobe"}, nil, nil, rec)

	if _, err := engine.ExtractFromVideoFile(context.Background(), src); err != nil {
		t.Fatalf("ExtractFromVideoFile: %v", err)
	}
	binaries := []string{}
	for _, call := range rec.Calls() {
		binaries = append(binaries, call.Binary)
	}
	if !slices.Equal(binaries, []string{"ffprobe", "ffmpeg"}) {
		t.Fatalf("unexpected call order %v", binaries)
	}
}

func TestTranscodeTimeout(t *testing.T) {
	src := writeFile(t, filepath.Join(t.TempDir(), "long.mp4"), "media")
	rec := &command.Recorder{Handler: func(ctx context.Context, spec command.Spec) (command.Result, error) {
		<-ctx.Done()
		return command.Result{}, ctx.Err()
	}}
	engine, _ := newEngine(t, audio.Options{Timeout: 20 * time.Millisecond}, nil, nil, rec)

	_, err := engine.ExtractFromVideoFile(context.Background(), src)
	if !services.IsKind(err, services.KindTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestTranscodeCancellation(t *testing.T) {
	src := writeFile(t, filepath.Join(t.TempDir(), "long.mp4"), "media")
	ctx, cancel := context.WithCancel(context.Background())
	rec := &command.Recorder{Handler: func(ctx context.Context, spec command.Spec) (command.Result, error) {
		cancel()
		<-ctx.Done()
		return command.Result{}, ctx.Err()
	}}
	engine, _ := newEngine(t, audio.Options{}, nil, nil, rec)

	_, err := engine.ExtractFromVideoFile(ctx, src)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestProbeDuration(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		want   float64
		kind   services.Kind
	}{
		{name: "reported", stdout: `{"streams":[],"format":{"duration":"754.25"}}`, want: 754.25},
		{name: "missing", stdout: `{"streams":[],"format":{}}`, kind: services.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &command.Recorder{Handler: func(context.Context, command.Spec) (command.Result, error) {
				return command.Result{Stdout: tt.stdout}, nil
			}}
			engine, _ := newEngine(t, audio.Options{FFprobe: "ffprobe"}, nil, nil, rec)
			got, err := engine.ProbeDuration(context.Background(), "clip.mp4")
			if tt.kind != "" {
				if !services.IsKind(err, tt.kind) {
					t.Fatalf("expected %s, got %v", tt.kind, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ProbeDuration = %v, %v; want %v", got, err, tt.want)
			}
		})
	}
}
