package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"vidingest/internal/queue"
	"vidingest/internal/services"
	"vidingest/internal/testsupport"
)

func TestEnqueueNormalizesVideoReference(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, queue.EnqueueRequest{
		ExternalVideoID: "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42",
		Priority:        3,
		UserID:          "user-7",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if item.ID == 0 || item.Status != queue.StatusPending {
		t.Fatalf("unexpected item %#v", item)
	}
	if item.ExternalVideoID != "dQw4w9WgXcQ" || item.Priority != 3 || item.UserID != "user-7" {
		t.Fatalf("fields not persisted: %#v", item)
	}
	if item.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}
	if store.Path() != cfg.QueueDBPath() {
		t.Fatalf("store path = %s, want %s", store.Path(), cfg.QueueDBPath())
	}
}

func TestEnqueueUploadedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	path := filepath.Join(testsupport.BaseDir(cfg), "uploads", "Team Sync.mp4")
	item, err := store.Enqueue(context.Background(), queue.EnqueueRequest{UploadedFilePath: path})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if item.UploadedFilePath != path || item.Title != "Team Sync" || item.Source() != path {
		t.Fatalf("unexpected item %#v", item)
	}
}

func TestEnqueueRejectsInvalidRequests(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	tests := []struct {
		name string
		req  queue.EnqueueRequest
	}{
		{name: "empty", req: queue.EnqueueRequest{}},
		{name: "both", req: queue.EnqueueRequest{ExternalVideoID: "dQw4w9WgXcQ", UploadedFilePath: "/tmp/a.mp4"}},
		{name: "malformed id", req: queue.EnqueueRequest{ExternalVideoID: "not a video"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Enqueue(context.Background(), tt.req)
			if !services.IsKind(err, services.KindInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestNextPendingHonoursPriorityThenAge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	low, _ := store.Enqueue(ctx, queue.EnqueueRequest{ExternalVideoID: "aaaaaaaaaaa"})
	high, _ := store.Enqueue(ctx, queue.EnqueueRequest{ExternalVideoID: "bbbbbbbbbbb", Priority: 5})
	low2, _ := store.Enqueue(ctx, queue.EnqueueRequest{ExternalVideoID: "ccccccccccc"})

	for _, want := range []int64{high.ID, low.ID, low2.ID} {
		item, err := store.NextPending(ctx)
		if err != nil {
			t.Fatalf("NextPending: %v", err)
		}
		if item == nil || item.ID != want {
			t.Fatalf("expected item %d, got %#v", want, item)
		}
		if item.Status != queue.StatusResolving || item.LastHeartbeat == nil {
			t.Fatalf("claimed item should be resolving with a heartbeat: %#v", item)
		}
	}
	item, err := store.NextPending(ctx)
	if err != nil || item != nil {
		t.Fatalf("expected empty queue, got %#v, %v", item, err)
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.Enqueue(t, store, "dQw4w9WgXcQ")
	item.Status = queue.StatusCompleted
	item.Title = "Never Gonna Give You Up"
	item.MetadataJSON = `{"title":"Never Gonna Give You Up"}`
	item.ModelTier = "base"
	item.AudioPath = "/data/dQw4w9WgXcQ/audio.wav"
	item.CorrelationID = "corr-1"
	item.ProgressPercent = 100
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.Status != queue.StatusCompleted || fetched.ModelTier != "base" || fetched.AudioPath != item.AudioPath {
		t.Fatalf("update not persisted: %#v", fetched)
	}
	if fetched.ProgressPercent != 100 || fetched.CorrelationID != "corr-1" {
		t.Fatalf("progress not persisted: %#v", fetched)
	}

	missing, err := store.GetByID(ctx, 9999)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing item, got %#v, %v", missing, err)
	}
	if err := store.Update(ctx, nil); err == nil {
		t.Fatal("expected error for nil item")
	}
}

func TestTransitionAndProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.Enqueue(t, store, "dQw4w9WgXcQ")
	if err := store.Transition(ctx, item.ID, queue.StatusDownloading); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := store.UpdateProgress(ctx, item.ID, "downloading", 42.5, "4.2 MiB of 10 MiB"); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	fetched, _ := store.GetByID(ctx, item.ID)
	if fetched.Status != queue.StatusDownloading || fetched.ProgressPercent != 42.5 || fetched.ProgressMessage == "" {
		t.Fatalf("unexpected item %#v", fetched)
	}
	if !fetched.IsProcessing() {
		t.Fatal("downloading item should be processing")
	}

	active, err := store.FindActiveByVideo(ctx, "dQw4w9WgXcQ")
	if err != nil || active == nil || active.ID != item.ID {
		t.Fatalf("FindActiveByVideo = %#v, %v", active, err)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	statuses := []queue.Status{queue.StatusResolving, queue.StatusDownloading, queue.StatusExtracting, queue.StatusCompleted}
	ids := make([]int64, 0, len(statuses))
	for i, status := range statuses {
		item := testsupport.Enqueue(t, store, []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc", "ddddddddddd"}[i])
		if err := store.Transition(ctx, item.ID, status); err != nil {
			t.Fatalf("Transition: %v", err)
		}
		ids = append(ids, item.ID)
	}

	n, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 reset items, got %d", n)
	}
	for i, id := range ids {
		item, _ := store.GetByID(ctx, id)
		want := queue.StatusPending
		if statuses[i] == queue.StatusCompleted {
			want = queue.StatusCompleted
		}
		if item.Status != want {
			t.Fatalf("item %d: status %s, want %s", id, item.Status, want)
		}
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.Enqueue(t, store, "dQw4w9WgXcQ")
	if _, err := store.NextPending(ctx); err != nil {
		t.Fatalf("NextPending: %v", err)
	}

	n, err := store.ReclaimStaleProcessing(ctx, time.Now().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("fresh heartbeat should not be reclaimed: %d, %v", n, err)
	}
	n, err = store.ReclaimStaleProcessing(ctx, time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("stale heartbeat should be reclaimed: %d, %v", n, err)
	}
	fetched, _ := store.GetByID(ctx, item.ID)
	if fetched.Status != queue.StatusPending {
		t.Fatalf("expected pending, got %s", fetched.Status)
	}
}

func TestRetryFailedLeavesReviewAlone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	failed := testsupport.Enqueue(t, store, "aaaaaaaaaaa")
	failed.Status = queue.StatusFailed
	failed.ErrorKind = string(services.KindTransient)
	failed.ErrorMessage = "connection reset"
	review := testsupport.Enqueue(t, store, "bbbbbbbbbbb")
	review.Status = queue.StatusReview
	for _, item := range []*queue.Item{failed, review} {
		if err := store.Update(ctx, item); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	n, err := store.RetryFailed(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RetryFailed = %d, %v", n, err)
	}
	got, _ := store.GetByID(ctx, failed.ID)
	if got.Status != queue.StatusPending || got.ErrorMessage != "" || got.ErrorKind != "" {
		t.Fatalf("failed item not reset: %#v", got)
	}
	got, _ = store.GetByID(ctx, review.ID)
	if got.Status != queue.StatusReview {
		t.Fatalf("review item changed: %#v", got)
	}
}

func TestStatsHealthAndRemoval(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.Enqueue(t, store, "aaaaaaaaaaa")
	b := testsupport.Enqueue(t, store, "bbbbbbbbbbb")
	testsupport.Enqueue(t, store, "ccccccccccc")
	if err := store.Transition(ctx, a.ID, queue.StatusCompleted); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := store.Transition(ctx, b.ID, queue.StatusExtracting); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 3 || health.Pending != 1 || health.Processing != 1 || health.Completed != 1 {
		t.Fatalf("unexpected health %#v", health)
	}

	pending, err := store.List(ctx, queue.StatusPending)
	if err != nil || len(pending) != 1 {
		t.Fatalf("List(pending) = %d items, %v", len(pending), err)
	}
	all, _ := store.List(ctx)
	if len(all) != 3 || all[0].ID < all[2].ID {
		t.Fatalf("List should return newest first, got %d items", len(all))
	}

	if n, err := store.ClearCompleted(ctx); err != nil || n != 1 {
		t.Fatalf("ClearCompleted = %d, %v", n, err)
	}
	if n, err := store.FailActive(ctx, queue.DaemonStopReason); err != nil || n != 1 {
		t.Fatalf("FailActive = %d, %v", n, err)
	}
	if n, err := store.Remove(ctx, b.ID); err != nil || n != 1 {
		t.Fatalf("Remove = %d, %v", n, err)
	}
	if n, err := store.Clear(ctx); err != nil || n != 1 {
		t.Fatalf("Clear = %d, %v", n, err)
	}
}

func TestParseStatus(t *testing.T) {
	for _, status := range queue.AllStatuses() {
		got, ok := queue.ParseStatus(" " + string(status) + " ")
		if !ok || got != status {
			t.Fatalf("ParseStatus(%q) = %q, %v", status, got, ok)
		}
	}
	if _, ok := queue.ParseStatus("ripping"); ok {
		t.Fatal("unknown status should not parse")
	}
}

func TestFailureStatus(t *testing.T) {
	tests := []struct {
		err  error
		want queue.Status
	}{
		{services.Validation("resolve", "duration", "too long"), queue.StatusReview},
		{services.InvalidArgument("enqueue", "external_id", "bad"), queue.StatusReview},
		{services.NotFound("resolve", "x", services.ReasonPrivate, nil), queue.StatusReview},
		{services.AgeRestricted("resolve", "x", nil), queue.StatusReview},
		{services.Transient("download", "x", errors.New("reset")), queue.StatusFailed},
		{services.AccessDenied("download", "x", nil), queue.StatusFailed},
		{services.ResourceExhausted("download", 10, 1), queue.StatusFailed},
		{services.ToolFailure("extract", "ffmpeg", "boom", nil), queue.StatusFailed},
		{services.Timeout("download", "x", nil), queue.StatusFailed},
		{context.Canceled, queue.StatusFailed},
		{errors.New("unclassified"), queue.StatusFailed},
	}
	for _, tt := range tests {
		if got := queue.FailureStatus(tt.err); got != tt.want {
			t.Errorf("FailureStatus(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestOpenRejectsForeignSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	store, err := queue.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump user_version: %v", err)
	}
	_ = db.Close()

	if _, err := queue.OpenPath(path); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestReopenKeepsItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	first, err := queue.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	testsupport.Enqueue(t, first, "dQw4w9WgXcQ")
	_ = first.Close()

	second, err := queue.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	items, err := second.List(context.Background())
	if err != nil || len(items) != 1 || items[0].ExternalVideoID != "dQw4w9WgXcQ" {
		t.Fatalf("unexpected items after reopen: %v %v", items, err)
	}
}
