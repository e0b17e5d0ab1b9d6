package testsupport

import (
	"context"
	"testing"

	"reelstream/internal/config"
	"reelstream/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Enqueue adds a job for tests using the provided store and fails the test
// on error.
func Enqueue(t testing.TB, store *queue.Store, sourcePath string, priority queue.Priority) *queue.Job {
	t.Helper()

	job, _, err := store.Enqueue(context.Background(), sourcePath, priority)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}
