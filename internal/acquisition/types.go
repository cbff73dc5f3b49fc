package acquisition

import (
	"context"
	"time"
)

// AudioStreamDescriptor describes the preferred audio-bearing format of a video.
type AudioStreamDescriptor struct {
	FormatID  string  `json:"format_id"`
	Container string  `json:"container"`
	Bitrate   float64 `json:"bitrate_kbps"`
	Size      int64   `json:"size_bytes"`
	Codec     string  `json:"codec"`
	URL       string  `json:"url,omitempty"`
}

// DownloadProgress is one sampled progress update.
type DownloadProgress struct {
	ExternalID      string        `json:"external_id"`
	Stage           string        `json:"stage"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	TotalBytes      int64         `json:"total_bytes"`
	Percent         float64       `json:"percent"`
	Throughput      float64       `json:"throughput_bytes_per_second"`
	ETA             time.Duration `json:"eta"`
	At              time.Time     `json:"at"`
}

// ProgressSink receives progress updates. Implementations may fail or even
// panic; neither affects the download.
type ProgressSink interface {
	Publish(ctx context.Context, update DownloadProgress) error
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(ctx context.Context, update DownloadProgress) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, update DownloadProgress) error {
	return f(ctx, update)
}

// State is a step of the per-attempt download state machine.
type State string

const (
	StateIdle        State = "idle"
	StateDiskCheck   State = "disk_check"
	StateDownloading State = "downloading"
	StateVerifying   State = "verifying"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
)

// Progress stages reported to sinks.
const (
	StageDownloading = "downloading"
	StageCompleted   = "completed"
)
