package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"reelstream/internal/catalog"
	"reelstream/internal/config"
	"reelstream/internal/daemon"
	"reelstream/internal/encoder"
	"reelstream/internal/logging"
	"reelstream/internal/queue"
	"reelstream/internal/testsupport"
)

func newDaemon(t *testing.T) (*config.Config, *queue.Store, *daemon.Daemon) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	catalogStore, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	d, err := daemon.New(cfg, store, catalogStore, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	return cfg, store, d
}

func TestDaemonStartStop(t *testing.T) {
	_, _, d := newDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Running() {
		t.Fatal("expected daemon to report running")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	status := d.Status(ctx)
	if !status.Running || status.PID <= 0 {
		t.Fatalf("unexpected status: %#v", status)
	}
	if !strings.HasSuffix(status.QueueDBPath, "queue.db") {
		t.Fatalf("unexpected queue db path: %s", status.QueueDBPath)
	}
	if !status.Scheduler.IsRunning {
		t.Fatal("expected scheduler to be running")
	}

	d.Stop()
	if d.Running() {
		t.Fatal("expected daemon to be stopped")
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	d.Stop()
}

func TestConcurrentStartStopIsSerialized(t *testing.T) {
	_, _, d := newDaemon(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 3; j++ {
				_ = d.Start(ctx)
				d.Stop()
			}
		}()
	}
	wg.Wait()

	d.Stop()
	if d.Running() {
		t.Fatal("expected daemon stopped after churn")
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start after churn: %v", err)
	}
	d.Stop()
}

func TestDaemonLockRejectsSecondInstance(t *testing.T) {
	cfg, store, d := newDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	catalogStore, err := catalog.OpenPath(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("catalog.OpenPath: %v", err)
	}
	second, err := daemon.New(cfg, store, catalogStore, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New second: %v", err)
	}
	t.Cleanup(func() {
		second.Stop()
		catalogStore.Close()
	})

	err = second.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}
}

func TestAddFileValidation(t *testing.T) {
	cfg, _, d := newDaemon(t)
	ctx := context.Background()

	if _, _, err := d.AddFile(ctx, "", queue.PriorityNormal); err == nil {
		t.Fatal("expected empty path to be rejected")
	}
	if _, _, err := d.AddFile(ctx, filepath.Join(cfg.Paths.LibraryDir, "missing.mkv"), queue.PriorityNormal); err == nil {
		t.Fatal("expected missing file to be rejected")
	}
	if _, _, err := d.AddFile(ctx, cfg.Paths.LogDir, queue.PriorityNormal); err == nil {
		t.Fatal("expected directory to be rejected")
	}

	textFile := filepath.Join(cfg.Paths.LibraryDir, "notes.txt")
	testsupport.WriteFile(t, textFile, 16)
	if _, _, err := d.AddFile(ctx, textFile, queue.PriorityNormal); err == nil {
		t.Fatal("expected unsupported extension to be rejected")
	}

	movie := filepath.Join(cfg.Paths.LibraryDir, "movie.mkv")
	testsupport.WriteFile(t, movie, 64)
	job, added, err := d.AddFile(ctx, movie, queue.PriorityNormal)
	if err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}
	if !added || job.Status != queue.StatusQueued {
		t.Fatalf("unexpected add result: added=%v job=%#v", added, job)
	}

	_, added, err = d.AddFile(ctx, movie, queue.PriorityNormal)
	if err != nil {
		t.Fatalf("duplicate AddFile failed: %v", err)
	}
	if added {
		t.Fatal("expected duplicate add to be skipped")
	}
}

func TestMoveJobRejectsUnknownDirection(t *testing.T) {
	cfg, store, d := newDaemon(t)
	job := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "a.mkv"), queue.PriorityNormal)

	if _, err := d.MoveJob(context.Background(), job.ID, "sideways"); err == nil {
		t.Fatal("expected unknown direction to be rejected")
	}
}

func TestCleanupTranscodedRemovesArtifacts(t *testing.T) {
	cfg, _, d := newDaemon(t)

	source := filepath.Join(cfg.Paths.LibraryDir, "show.mkv")
	enc := encoder.New(cfg, logging.NewNop())
	outputDir := enc.OutputDirFor(source)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatalf("mkdir output: %v", err)
	}
	manifest := filepath.Join(outputDir, encoder.ManifestName)
	if err := os.WriteFile(manifest, []byte("#EXTM3U\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	removed, err := d.CleanupTranscoded(source)
	if err != nil {
		t.Fatalf("CleanupTranscoded failed: %v", err)
	}
	if removed != outputDir {
		t.Fatalf("expected %s, got %s", outputDir, removed)
	}
	if _, err := os.Stat(outputDir); !os.IsNotExist(err) {
		t.Fatalf("expected output dir to be removed, stat err=%v", err)
	}

	if _, err := d.CleanupTranscoded("  "); err == nil {
		t.Fatal("expected blank path to be rejected")
	}
}

func TestStartScanRejectsUnknownMode(t *testing.T) {
	_, _, d := newDaemon(t)

	if _, err := d.StartScan("chronological"); err == nil {
		t.Fatal("expected unknown scan mode to be rejected")
	}

	task, err := d.StartScan("alphabetical")
	if err != nil {
		t.Fatalf("StartScan failed: %v", err)
	}
	if task.ID == "" {
		t.Fatal("expected scan task id")
	}
}
