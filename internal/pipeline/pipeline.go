package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"vidingest/internal/acquisition"
	"vidingest/internal/logging"
	"vidingest/internal/metadata"
	"vidingest/internal/models"
	"vidingest/internal/services"
)

// Stage names a pipeline step.
type Stage string

const (
	StageResolving   Stage = "resolving"
	StageSelecting   Stage = "selecting_model"
	StageDownloading Stage = "downloading"
	StageExtracting  Stage = "extracting"
)

// progressBuffer bounds queued progress updates between the download and the
// forwarding goroutine. Intermediate updates beyond it are dropped.
const progressBuffer = 16

// MetadataResolver resolves video metadata.
type MetadataResolver interface {
	Resolve(ctx context.Context, ref string) (metadata.VideoMetadata, error)
}

// ModelSelector chooses and materializes a transcription model.
type ModelSelector interface {
	SelectModel(durationSeconds float64) (models.Tier, error)
	ModelPath(ctx context.Context, tier models.Tier) (string, error)
}

// AudioExtractor produces transcription-ready audio.
type AudioExtractor interface {
	ExtractFromURL(ctx context.Context, externalID string, sink acquisition.ProgressSink) (string, error)
	ExtractFromVideoFile(ctx context.Context, videoPath string) (string, error)
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Job is one unit of work: either an external video or an uploaded file.
type Job struct {
	ExternalVideoID  string
	UploadedFilePath string
	Priority         int
	UserID           string
}

// Validate reports whether exactly one input is set.
func (j Job) Validate() error {
	hasID := strings.TrimSpace(j.ExternalVideoID) != ""
	hasFile := strings.TrimSpace(j.UploadedFilePath) != ""
	switch {
	case hasID && hasFile:
		return services.InvalidArgument("run pipeline", "job", "set either a video id or an uploaded file, not both")
	case !hasID && !hasFile:
		return services.InvalidArgument("run pipeline", "job", "a video id or an uploaded file is required")
	}
	return nil
}

// Result is what a successful run produced.
type Result struct {
	CorrelationID string
	Metadata      *metadata.VideoMetadata
	ModelTier     models.Tier
	ModelPath     string
	AudioPath     string
	Elapsed       time.Duration
}

// Pipeline wires the stages together.
type Pipeline struct {
	resolver  MetadataResolver
	selector  ModelSelector
	extractor AudioExtractor
	logger    *slog.Logger
}

// New constructs a pipeline.
func New(resolver MetadataResolver, selector ModelSelector, extractor AudioExtractor, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		resolver:  resolver,
		selector:  selector,
		extractor: extractor,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Hooks observe a run. Both fields are optional.
type Hooks struct {
	// OnStage is called as each stage begins.
	OnStage func(ctx context.Context, stage Stage)
	// Sink receives download progress.
	Sink acquisition.ProgressSink
}

// Run executes the pipeline for job.
func (p *Pipeline) Run(ctx context.Context, job Job, hooks Hooks) (Result, error) {
	if err := job.Validate(); err != nil {
		return Result{}, err
	}
	correlationID := uuid.NewString()
	ctx = services.WithRequestID(ctx, correlationID)
	started := time.Now()

	var (
		result Result
		err    error
	)
	if job.UploadedFilePath != "" {
		result, err = p.runUpload(ctx, job, hooks)
	} else {
		result, err = p.runRemote(ctx, job, hooks)
	}
	result.CorrelationID = correlationID
	result.Elapsed = time.Since(started)

	logger := logging.WithContext(ctx, p.logger)
	if err != nil {
		attrs := []logging.Attr{
			logging.ErrorKind(err),
			logging.Error(err),
			logging.Duration("elapsed", result.Elapsed),
		}
		if errors.Is(err, context.Canceled) {
			logger.Info("pipeline cancelled", logging.Args(attrs...)...)
		} else {
			logger.Warn("pipeline failed", logging.Args(attrs...)...)
		}
		return result, err
	}
	logger.Info("pipeline completed",
		logging.String("model_tier", result.ModelTier.String()),
		logging.String("audio_path", result.AudioPath),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

func (p *Pipeline) runRemote(ctx context.Context, job Job, hooks Hooks) (Result, error) {
	var result Result
	enter(ctx, hooks, StageResolving)
	meta, err := p.resolver.Resolve(ctx, job.ExternalVideoID)
	if err != nil {
		return result, err
	}
	result.Metadata = &meta
	ctx = services.WithVideoID(ctx, meta.ExternalID)

	if err := p.chooseModel(ctx, hooks, meta.DurationSeconds(), &result); err != nil {
		return result, err
	}

	enter(ctx, hooks, StageDownloading)
	forward := startForwarder(ctx, hooks.Sink, p.logger)
	audioPath, err := p.extractor.ExtractFromURL(ctx, meta.ExternalID, forward)
	forward.stop()
	if err != nil {
		return result, err
	}
	result.AudioPath = audioPath
	return result, nil
}

func (p *Pipeline) runUpload(ctx context.Context, job Job, hooks Hooks) (Result, error) {
	var result Result
	enter(ctx, hooks, StageResolving)
	seconds, err := p.extractor.ProbeDuration(ctx, job.UploadedFilePath)
	if err != nil {
		return result, err
	}
	if err := p.chooseModel(ctx, hooks, seconds, &result); err != nil {
		return result, err
	}
	enter(ctx, hooks, StageExtracting)
	audioPath, err := p.extractor.ExtractFromVideoFile(ctx, job.UploadedFilePath)
	if err != nil {
		return result, err
	}
	result.AudioPath = audioPath
	return result, nil
}

func (p *Pipeline) chooseModel(ctx context.Context, hooks Hooks, seconds float64, result *Result) error {
	enter(ctx, hooks, StageSelecting)
	tier, err := p.selector.SelectModel(seconds)
	if err != nil {
		return err
	}
	path, err := p.selector.ModelPath(ctx, tier)
	if err != nil {
		return err
	}
	result.ModelTier = tier
	result.ModelPath = path
	return nil
}

func enter(ctx context.Context, hooks Hooks, stage Stage) {
	if hooks.OnStage != nil {
		hooks.OnStage(services.WithStage(ctx, string(stage)), stage)
	}
}

// forwarder decouples the download's progress callbacks from a possibly slow
// sink. Updates are delivered in order by a single goroutine.
type forwarder struct {
	ctx     context.Context
	updates chan acquisition.DownloadProgress
	sink    acquisition.ProgressSink
	logger  *slog.Logger
	dropped atomic.Int64
	once    sync.Once
	wg      sync.WaitGroup
}

func startForwarder(ctx context.Context, sink acquisition.ProgressSink, logger *slog.Logger) *forwarder {
	f := &forwarder{
		ctx:     ctx,
		updates: make(chan acquisition.DownloadProgress, progressBuffer),
		sink:    sink,
		logger:  logger,
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for update := range f.updates {
			f.deliver(update)
		}
	}()
	return f
}

func (f *forwarder) deliver(update acquisition.DownloadProgress) {
	if f.sink == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			f.logger.Warn("progress sink panicked", logging.Any("panic", rec))
		}
	}()
	if err := f.sink.Publish(f.ctx, update); err != nil {
		f.logger.Debug("progress sink failed", logging.Error(err))
	}
}

// Publish queues the update without blocking. When the queue is full an
// intermediate update is dropped, while a completion update evicts the
// oldest queued one so the final state always reaches the sink.
func (f *forwarder) Publish(ctx context.Context, update acquisition.DownloadProgress) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case f.updates <- update:
			return nil
		default:
		}
		if update.Stage != acquisition.StageCompleted {
			f.dropped.Add(1)
			return nil
		}
		select {
		case <-f.updates:
			f.dropped.Add(1)
		default:
		}
	}
}

// stop closes the queue and waits for delivery to finish.
func (f *forwarder) stop() {
	f.once.Do(func() { close(f.updates) })
	f.wg.Wait()
	if n := f.dropped.Load(); n > 0 {
		f.logger.Debug("progress updates dropped", logging.Int64("dropped", n))
	}
}
