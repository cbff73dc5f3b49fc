package acquisition_test

import (
	"context"
	"errors"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vidingest/internal/acquisition"
	"vidingest/internal/config"
	"vidingest/internal/services"
	"vidingest/internal/services/ytdlp"
	"vidingest/internal/storage"
)

const videoID = "dQw4w9WgXcQ"

type fakeTool struct {
	dumps     atomic.Int32
	downloads atomic.Int32
	info      *ytdlp.Info
	dumpErr   error
	download  func(ctx context.Context, attempt int32, req ytdlp.DownloadRequest) (string, error)
}

func (f *fakeTool) DumpJSON(ctx context.Context, url, id string) (*ytdlp.Info, error) {
	f.dumps.Add(1)
	if f.dumpErr != nil {
		return nil, f.dumpErr
	}
	if f.info == nil {
		return &ytdlp.Info{}, nil
	}
	return f.info, nil
}

func (f *fakeTool) Download(ctx context.Context, req ytdlp.DownloadRequest) (string, error) {
	n := f.downloads.Add(1)
	return f.download(ctx, n, req)
}

func writeOutput(t *testing.T, req ytdlp.DownloadRequest, content string) string {
	t.Helper()
	path := strings.Replace(req.OutputTemplate, "%(ext)s", "webm", 1)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write output: %v", err)
	}
	return path
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newService(t *testing.T, tool acquisition.Downloader, available uint64, sleeper *recordingSleeper) *acquisition.Service {
	t.Helper()
	store := storage.NewManager(t.TempDir(), 2, nil).WithStatfs(func(string) (uint64, uint64, error) {
		return available, available, nil
	})
	if sleeper == nil {
		sleeper = &recordingSleeper{}
	}
	return acquisition.NewService(tool, store, acquisition.Options{
		Retry: services.RetryPolicy{
			Attempts: 3,
			Delays:   []time.Duration{10 * time.Second, 30 * time.Second},
			Sleep:    sleeper.Sleep,
		},
		ProgressInterval: 10 * time.Second,
		StreamCacheTTL:   5 * time.Minute,
	}, nil)
}

func TestDownloadVideoSucceedsAndReportsProgress(t *testing.T) {
	tool := &fakeTool{}
	tool.download = func(ctx context.Context, _ int32, req ytdlp.DownloadRequest) (string, error) {
		for _, pct := range []int64{10, 20, 30} {
			req.OnProgress(ytdlp.Progress{Downloaded: pct, Total: 100})
		}
		return writeOutput(t, req, "media"), nil
	}
	var updates []acquisition.DownloadProgress
	sink := acquisition.SinkFunc(func(_ context.Context, u acquisition.DownloadProgress) error {
		updates = append(updates, u)
		return nil
	})
	frozen := time.Unix(1000, 0)
	svc := newService(t, tool, 1<<40, nil).WithClock(func() time.Time { return frozen })

	path, err := svc.DownloadVideo(context.Background(), "https://youtu.be/"+videoID, sink)
	if err != nil {
		t.Fatalf("DownloadVideo: %v", err)
	}
	if !strings.Contains(path, videoID) || !strings.HasSuffix(path, ".webm") {
		t.Fatalf("unexpected path %q", path)
	}
	if len(updates) != 2 {
		t.Fatalf("expected first and final updates only, got %d: %+v", len(updates), updates)
	}
	if updates[0].Percent != 10 || updates[0].Stage != acquisition.StageDownloading {
		t.Fatalf("unexpected first update %+v", updates[0])
	}
	last := updates[1]
	if last.Stage != acquisition.StageCompleted || last.Percent != 100 || last.BytesDownloaded != 5 {
		t.Fatalf("unexpected final update %+v", last)
	}
}

func TestDownloadVideoExhaustsRetries(t *testing.T) {
	tool := &fakeTool{}
	tool.download = func(context.Context, int32, ytdlp.DownloadRequest) (string, error) {
		return "", services.Transient("yt-dlp download", videoID, errors.New("connection reset"))
	}
	sleeper := &recordingSleeper{}
	_, err := newService(t, tool, 1<<40, sleeper).DownloadVideo(context.Background(), videoID, nil)

	if got := services.AttemptsOf(err); got != 3 {
		t.Fatalf("expected 3 attempts reported, got %d (%v)", got, err)
	}
	if !strings.Contains(err.Error(), videoID) {
		t.Fatalf("expected external id in %q", err.Error())
	}
	if tool.downloads.Load() != 3 {
		t.Fatalf("expected 3 download calls, got %d", tool.downloads.Load())
	}
	var total time.Duration
	for _, d := range sleeper.delays {
		total += d
	}
	if len(sleeper.delays) != 2 || total != 40*time.Second {
		t.Fatalf("expected waits of 10s and 30s, got %v", sleeper.delays)
	}
}

func TestDownloadVideoRetriesElapsedTime(t *testing.T) {
	tool := &fakeTool{}
	tool.download = func(context.Context, int32, ytdlp.DownloadRequest) (string, error) {
		return "", services.Transient("yt-dlp download", videoID, errors.New("timed out"))
	}
	store := storage.NewManager(t.TempDir(), 2, nil)
	svc := acquisition.NewService(tool, store, acquisition.Options{
		Retry: services.RetryPolicy{
			Attempts: 3,
			Delays:   []time.Duration{10 * time.Millisecond, 30 * time.Millisecond},
		},
	}, nil)

	started := time.Now()
	_, err := svc.DownloadVideo(context.Background(), videoID, nil)
	elapsed := time.Since(started)
	if services.AttemptsOf(err) != 3 {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if elapsed < 40*time.Millisecond || elapsed > 2*time.Second {
		t.Fatalf("elapsed %v outside expected backoff window", elapsed)
	}
}

func TestDownloadVideoDefaultScheduleWaitsEveryConfiguredDelay(t *testing.T) {
	cfg := config.Default()
	tool := &fakeTool{}
	tool.download = func(context.Context, int32, ytdlp.DownloadRequest) (string, error) {
		return "", services.Transient("yt-dlp download", videoID, errors.New("connection reset"))
	}
	sleeper := &recordingSleeper{}
	opts := acquisition.OptionsFromConfig(&cfg)
	opts.Retry.Sleep = sleeper.Sleep
	svc := acquisition.NewService(tool, storage.NewManager(t.TempDir(), 2, nil), opts, nil)

	_, err := svc.DownloadVideo(context.Background(), videoID, nil)
	if got := services.AttemptsOf(err); got != cfg.Download.RetryAttempts {
		t.Fatalf("expected %d attempts reported, got %d (%v)", cfg.Download.RetryAttempts, got, err)
	}
	configured := cfg.DownloadRetryDelays()
	if !slices.Equal(sleeper.delays, configured) {
		t.Fatalf("waits %v, want every configured delay %v", sleeper.delays, configured)
	}
}

func TestDownloadVideoNonTransientFailsImmediately(t *testing.T) {
	tool := &fakeTool{}
	tool.download = func(context.Context, int32, ytdlp.DownloadRequest) (string, error) {
		return "", services.NotFound("yt-dlp download", videoID, services.ReasonPrivate, nil)
	}
	_, err := newService(t, tool, 1<<40, nil).DownloadVideo(context.Background(), videoID, nil)
	if !services.IsKind(err, services.KindNotFound) || services.AttemptsOf(err) != 0 {
		t.Fatalf("expected immediate not found, got %v", err)
	}
	if tool.downloads.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", tool.downloads.Load())
	}
}

func TestDownloadVideoRejectsMalformedID(t *testing.T) {
	tool := &fakeTool{}
	_, err := newService(t, tool, 1<<40, nil).DownloadVideo(context.Background(), "???", nil)
	if !services.IsKind(err, services.KindInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if tool.downloads.Load() != 0 || tool.dumps.Load() != 0 {
		t.Fatal("malformed id must not reach the tool")
	}
}

func TestDownloadVideoVerificationFailureConsumesAttempt(t *testing.T) {
	tool := &fakeTool{}
	tool.download = func(_ context.Context, attempt int32, req ytdlp.DownloadRequest) (string, error) {
		if attempt == 1 {
			return writeOutput(t, req, ""), nil
		}
		return writeOutput(t, req, "ok"), nil
	}
	sleeper := &recordingSleeper{}
	path, err := newService(t, tool, 1<<40, sleeper).DownloadVideo(context.Background(), videoID, nil)
	if err != nil {
		t.Fatalf("DownloadVideo: %v", err)
	}
	if tool.downloads.Load() != 2 || len(sleeper.delays) != 1 {
		t.Fatalf("expected one retry after empty output, got %d calls", tool.downloads.Load())
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Fatalf("expected non-empty output at %s", path)
	}
}

func TestDownloadVideoDiskAdmission(t *testing.T) {
	size := int64(1000)
	tool := &fakeTool{info: &ytdlp.Info{Formats: []ytdlp.Format{
		{FormatID: "251", Ext: "webm", ACodec: "opus", VCodec: "none", ABR: 130, Filesize: &size},
	}}}
	tool.download = func(context.Context, int32, ytdlp.DownloadRequest) (string, error) {
		t.Fatal("download must not start without admission")
		return "", nil
	}
	_, err := newService(t, tool, 1999, nil).DownloadVideo(context.Background(), videoID, nil)
	var typed *services.Error
	if !errors.As(err, &typed) || typed.Kind != services.KindResourceExhausted {
		t.Fatalf("expected resource exhausted, got %v", err)
	}
	if typed.Required != 2000 || typed.Available != 1999 {
		t.Fatalf("unexpected required/available %d/%d", typed.Required, typed.Available)
	}
}

func TestDownloadVideoSinkFailuresDoNotPropagate(t *testing.T) {
	tool := &fakeTool{}
	tool.download = func(_ context.Context, _ int32, req ytdlp.DownloadRequest) (string, error) {
		req.OnProgress(ytdlp.Progress{Downloaded: 1, Total: 2})
		return writeOutput(t, req, "x"), nil
	}
	sinks := []acquisition.ProgressSink{
		acquisition.SinkFunc(func(context.Context, acquisition.DownloadProgress) error { return errors.New("redis down") }),
		acquisition.SinkFunc(func(context.Context, acquisition.DownloadProgress) error { panic("boom") }),
	}
	for _, sink := range sinks {
		if _, err := newService(t, tool, 1<<40, nil).DownloadVideo(context.Background(), videoID, sink); err != nil {
			t.Fatalf("sink failure leaked: %v", err)
		}
	}
}

func TestDownloadVideoAttemptTimeoutIsRetried(t *testing.T) {
	tool := &fakeTool{}
	tool.download = func(ctx context.Context, attempt int32, req ytdlp.DownloadRequest) (string, error) {
		if attempt == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return writeOutput(t, req, "ok"), nil
	}
	store := storage.NewManager(t.TempDir(), 2, nil)
	svc := acquisition.NewService(tool, store, acquisition.Options{
		Retry:          services.RetryPolicy{Attempts: 3, Delays: []time.Duration{0}},
		AttemptTimeout: 20 * time.Millisecond,
	}, nil)
	if _, err := svc.DownloadVideo(context.Background(), videoID, nil); err != nil {
		t.Fatalf("expected retry after attempt timeout, got %v", err)
	}
	if tool.downloads.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", tool.downloads.Load())
	}
}

func TestDownloadVideoCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tool := &fakeTool{}
	tool.download = func(context.Context, int32, ytdlp.DownloadRequest) (string, error) {
		cancel()
		return "", context.Canceled
	}
	_, err := newService(t, tool, 1<<40, nil).DownloadVideo(ctx, videoID, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if tool.downloads.Load() != 1 {
		t.Fatalf("cancelled download must not retry, got %d attempts", tool.downloads.Load())
	}
}

type panickyTool struct{}

func (panickyTool) DumpJSON(context.Context, string, string) (*ytdlp.Info, error) {
	panic("unexpected nil")
}

func (panickyTool) Download(context.Context, ytdlp.DownloadRequest) (string, error) {
	return "", nil
}

func TestIsAvailableNeverFails(t *testing.T) {
	ok := &fakeTool{info: &ytdlp.Info{Formats: []ytdlp.Format{{FormatID: "140", Ext: "m4a", ACodec: "mp4a.40.2", VCodec: "none", ABR: 128}}}}
	if !newService(t, ok, 1<<40, nil).IsAvailable(context.Background(), videoID) {
		t.Fatal("expected available")
	}

	failing := &fakeTool{dumpErr: services.Transient("dump", videoID, errors.New("network unreachable"))}
	svc := newService(t, failing, 1<<40, nil)
	for _, ref := range []string{"", "not-an-id", "https://vimeo.com/1", videoID} {
		if svc.IsAvailable(context.Background(), ref) {
			t.Fatalf("expected %q unavailable", ref)
		}
	}

	noAudio := &fakeTool{info: &ytdlp.Info{}}
	if newService(t, noAudio, 1<<40, nil).IsAvailable(context.Background(), videoID) {
		t.Fatal("video without audio must be unavailable")
	}

	if newService(t, panickyTool{}, 1<<40, nil).IsAvailable(context.Background(), videoID) {
		t.Fatal("panicking tool must report unavailable")
	}
}

func TestBestAudioStreamIsCached(t *testing.T) {
	tool := &fakeTool{info: &ytdlp.Info{Formats: []ytdlp.Format{{FormatID: "251", Ext: "webm", ACodec: "opus", VCodec: "none", ABR: 160}}}}
	svc := newService(t, tool, 1<<40, nil)
	for i := 0; i < 2; i++ {
		desc, err := svc.BestAudioStream(context.Background(), videoID)
		if err != nil || desc.FormatID != "251" {
			t.Fatalf("BestAudioStream = %+v, %v", desc, err)
		}
	}
	if tool.dumps.Load() != 1 {
		t.Fatalf("expected one extractor call, got %d", tool.dumps.Load())
	}
}
