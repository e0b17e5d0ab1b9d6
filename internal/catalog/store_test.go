package catalog_test

import (
	"context"
	"path/filepath"
	"testing"

	"reelstream/internal/catalog"
)

func openTestCatalog(t *testing.T) *catalog.Store {
	t.Helper()
	store, err := catalog.OpenPath(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertIsIdempotentPerPath(t *testing.T) {
	store := openTestCatalog(t)
	ctx := context.Background()

	first, err := store.Upsert(ctx, catalog.Entry{Path: "/library/show/a.mkv", Title: "A"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := store.Upsert(ctx, catalog.Entry{Path: "/library/show/a.mkv", Title: "A (remaster)", Ready: true})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same row updated, got ids %d and %d", first.ID, second.ID)
	}
	if second.Title != "A (remaster)" || !second.Ready {
		t.Fatalf("expected updated fields, got %+v", second)
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}

func TestUpsertNormalizesPath(t *testing.T) {
	store := openTestCatalog(t)
	ctx := context.Background()

	entry, err := store.Upsert(ctx, catalog.Entry{Path: "/library/show/../show/a.mkv", Title: "A"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if entry.Path != "/library/show/a.mkv" {
		t.Fatalf("expected normalized path, got %q", entry.Path)
	}

	found, err := store.GetByPath(ctx, "/library/show/a.mkv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found == nil || found.ID != entry.ID {
		t.Fatalf("expected lookup by normalized path to hit, got %+v", found)
	}
}

func TestSetReadyAndStats(t *testing.T) {
	store := openTestCatalog(t)
	ctx := context.Background()

	a, _ := store.Upsert(ctx, catalog.Entry{Path: "/library/a.mkv", Title: "A"})
	if _, err := store.Upsert(ctx, catalog.Entry{Path: "/library/b.mkv", Title: "B"}); err != nil {
		t.Fatalf("upsert b: %v", err)
	}

	if err := store.SetReady(ctx, a.ID, true); err != nil {
		t.Fatalf("set ready: %v", err)
	}
	if err := store.SetReady(ctx, 9999, true); err == nil {
		t.Fatal("expected error for unknown entry id")
	}

	total, ready, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if total != 2 || ready != 1 {
		t.Fatalf("expected total=2 ready=1, got total=%d ready=%d", total, ready)
	}

	updated, err := store.GetByPath(ctx, "/library/a.mkv")
	if err != nil || updated == nil || !updated.Ready {
		t.Fatalf("expected a ready, got %+v err=%v", updated, err)
	}
}

func TestRemoveEntry(t *testing.T) {
	store := openTestCatalog(t)
	ctx := context.Background()

	entry, _ := store.Upsert(ctx, catalog.Entry{Path: "/library/a.mkv", Title: "A"})

	removed, err := store.Remove(ctx, entry.ID)
	if err != nil || !removed {
		t.Fatalf("expected removal, got removed=%v err=%v", removed, err)
	}
	removed, err = store.Remove(ctx, entry.ID)
	if err != nil || removed {
		t.Fatalf("expected second removal to report false, got removed=%v err=%v", removed, err)
	}
}
