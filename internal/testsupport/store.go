package testsupport

import (
	"context"
	"testing"

	"vidingest/internal/config"
	"vidingest/internal/queue"
)

// MustOpenStore opens the queue database described by cfg and closes it when
// the test ends.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Enqueue adds a pending remote item for videoID.
func Enqueue(t testing.TB, store *queue.Store, videoID string) *queue.Item {
	t.Helper()
	item, err := store.Enqueue(context.Background(), queue.EnqueueRequest{ExternalVideoID: videoID})
	if err != nil {
		t.Fatalf("enqueue %s: %v", videoID, err)
	}
	return item
}
