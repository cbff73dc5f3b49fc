package queue

import (
	"slices"
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending     Status = "pending"
	StatusResolving   Status = "resolving"
	StatusDownloading Status = "downloading"
	StatusExtracting  Status = "extracting"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusReview      Status = "review"
)

// DaemonStopReason is the error message set when items are failed due to daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusResolving,
	StatusDownloading,
	StatusExtracting,
	StatusCompleted,
	StatusFailed,
	StatusReview,
}

var processingStatuses = []Status{StatusResolving, StatusDownloading, StatusExtracting}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Review     int
	Completed  int
}

// Item represents a queue item persisted in SQLite.
type Item struct {
	ID               int64
	ExternalVideoID  string
	UploadedFilePath string
	Priority         int
	UserID           string
	Title            string
	Status           Status
	MetadataJSON     string
	ModelTier        string
	AudioPath        string
	CorrelationID    string
	ErrorKind        string
	ErrorMessage     string
	ProgressStage    string
	ProgressPercent  float64
	ProgressMessage  string
	NeedsReview      bool
	ReviewReason     string
	LastHeartbeat    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Source returns the video id or uploaded path the item refers to.
func (i *Item) Source() string {
	if i.ExternalVideoID != "" {
		return i.ExternalVideoID
	}
	return i.UploadedFilePath
}

// IsProcessing reports whether the item is in an in-flight stage.
func (i *Item) IsProcessing() bool {
	return slices.Contains(processingStatuses, i.Status)
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	return slices.Clone(allStatuses)
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// EnqueueRequest describes a new job.
type EnqueueRequest struct {
	ExternalVideoID  string
	UploadedFilePath string
	Priority         int
	UserID           string
}
