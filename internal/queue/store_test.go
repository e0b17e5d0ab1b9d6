package queue_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"reelstream/internal/queue"
	"reelstream/internal/testsupport"
)

func TestEnqueueIsIdempotentPerSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	path := filepath.Join(cfg.Paths.LibraryDir, "movie.mkv")
	first, added, err := store.Enqueue(ctx, path, queue.PriorityNormal)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !added || first.ID == 0 {
		t.Fatalf("expected first enqueue to add a job, got added=%v job=%#v", added, first)
	}

	second, added, err := store.Enqueue(ctx, path, queue.PriorityHigh)
	if err != nil {
		t.Fatalf("repeat Enqueue failed: %v", err)
	}
	if added {
		t.Fatal("expected repeat enqueue to be a no-op")
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing job %d, got %d", first.ID, second.ID)
	}

	jobs, err := store.List(ctx, queue.StatusQueued)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected a single queued job, got %d", len(jobs))
	}
}

func TestDequeueOrderIsPriorityFirstThenInsertion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	jobA := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "a.mkv"), queue.PriorityNormal)
	jobB := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "b.mkv"), queue.PriorityHigh)
	jobC := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "c.mkv"), queue.PriorityNormal)

	wantOrder := []int64{jobB.ID, jobA.ID, jobC.ID}
	for i, wantID := range wantOrder {
		next, err := store.NextForRun(ctx)
		if err != nil {
			t.Fatalf("NextForRun %d failed: %v", i, err)
		}
		if next == nil || next.ID != wantID {
			t.Fatalf("dequeue %d: expected job %d, got %#v", i, wantID, next)
		}
		if ok, err := store.MarkRunning(ctx, next.ID, filepath.Join(cfg.Paths.OutputDir, "out")); err != nil || !ok {
			t.Fatalf("MarkRunning failed: ok=%v err=%v", ok, err)
		}
		if ok, err := store.MarkCompleted(ctx, next.ID); err != nil || !ok {
			t.Fatalf("MarkCompleted failed: ok=%v err=%v", ok, err)
		}
	}

	next, err := store.NextForRun(ctx)
	if err != nil {
		t.Fatalf("NextForRun after drain failed: %v", err)
	}
	if next != nil {
		t.Fatalf("expected empty queue, got %#v", next)
	}
}

func TestHighPriorityInsertsBehindEarlierHighPriority(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	normal := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "n.mkv"), queue.PriorityNormal)
	firstHigh := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "h1.mkv"), queue.PriorityHigh)
	secondHigh := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "h2.mkv"), queue.PriorityHigh)

	jobs, err := store.List(ctx, queue.StatusQueued)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	got := make([]int64, len(jobs))
	for i, job := range jobs {
		got[i] = job.ID
	}
	want := []int64{firstHigh.ID, secondHigh.ID, normal.ID}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestMoveToTopPlacesJobFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		job := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, fmt.Sprintf("m%d.mkv", i)), queue.PriorityNormal)
		ids = append(ids, job.ID)
	}

	moved, err := store.MoveToTop(ctx, ids[2])
	if err != nil {
		t.Fatalf("MoveToTop failed: %v", err)
	}
	if !moved {
		t.Fatal("expected MoveToTop to succeed for a queued job")
	}

	next, err := store.NextForRun(ctx)
	if err != nil {
		t.Fatalf("NextForRun failed: %v", err)
	}
	if next == nil || next.ID != ids[2] {
		t.Fatalf("expected job %d first, got %#v", ids[2], next)
	}
}

func TestMoveRejectsNonQueuedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "r.mkv"), queue.PriorityNormal)
	if ok, err := store.MarkRunning(ctx, job.ID, filepath.Join(cfg.Paths.OutputDir, "r")); err != nil || !ok {
		t.Fatalf("MarkRunning failed: ok=%v err=%v", ok, err)
	}

	if moved, err := store.MoveToTop(ctx, job.ID); err != nil || moved {
		t.Fatalf("expected MoveToTop to fail for running job, got moved=%v err=%v", moved, err)
	}
	if moved, err := store.MoveUp(ctx, job.ID); err != nil || moved {
		t.Fatalf("expected MoveUp to fail for running job, got moved=%v err=%v", moved, err)
	}
	if moved, err := store.MoveDown(ctx, 9999); err != nil || moved {
		t.Fatalf("expected MoveDown to fail for unknown job, got moved=%v err=%v", moved, err)
	}
}

func TestMoveUpAndDownSwapNeighbors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "one.mkv"), queue.PriorityNormal)
	second := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "two.mkv"), queue.PriorityNormal)

	if moved, err := store.MoveUp(ctx, second.ID); err != nil || !moved {
		t.Fatalf("MoveUp failed: moved=%v err=%v", moved, err)
	}
	assertQueueOrder(t, store, []int64{second.ID, first.ID})

	if moved, err := store.MoveDown(ctx, second.ID); err != nil || !moved {
		t.Fatalf("MoveDown failed: moved=%v err=%v", moved, err)
	}
	assertQueueOrder(t, store, []int64{first.ID, second.ID})

	// Moving the front job up is a harmless no-op.
	if moved, err := store.MoveUp(ctx, first.ID); err != nil || !moved {
		t.Fatalf("MoveUp at front failed: moved=%v err=%v", moved, err)
	}
	assertQueueOrder(t, store, []int64{first.ID, second.ID})
}

func TestReorderSkipsUnknownIDs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 4; i++ {
		job := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, fmt.Sprintf("s%d.mkv", i)), queue.PriorityNormal)
		ids = append(ids, job.ID)
	}

	applied, err := store.Reorder(ctx, []int64{ids[3], 424242, ids[1]})
	if err != nil {
		t.Fatalf("Reorder failed: %v", err)
	}
	if len(applied) != 2 || applied[0] != ids[3] || applied[1] != ids[1] {
		t.Fatalf("expected applied [%d %d], got %v", ids[3], ids[1], applied)
	}
	assertQueueOrder(t, store, []int64{ids[3], ids[1], ids[0], ids[2]})
}

func TestProgressIsMonotonicallyNonDecreasing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "p.mkv"), queue.PriorityNormal)
	if ok, err := store.MarkRunning(ctx, job.ID, filepath.Join(cfg.Paths.OutputDir, "p")); err != nil || !ok {
		t.Fatalf("MarkRunning failed: ok=%v err=%v", ok, err)
	}

	if err := store.MarkProgress(ctx, job.ID, 50, 3.5, 120); err != nil {
		t.Fatalf("MarkProgress failed: %v", err)
	}
	if err := store.MarkProgress(ctx, job.ID, 40, 3.0, 150); err != nil {
		t.Fatalf("MarkProgress failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.ProgressPercent != 50 {
		t.Fatalf("expected progress to hold at 50, got %v", fetched.ProgressPercent)
	}
	if fetched.EncodeSpeed != 3.0 {
		t.Fatalf("expected latest speed 3.0, got %v", fetched.EncodeSpeed)
	}
	if fetched.LastProgressAt == nil {
		t.Fatal("expected heartbeat timestamp to be set")
	}
}

func TestMarkFailedRetainsJobForInspection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "f.mkv"), queue.PriorityNormal)
	if ok, err := store.MarkRunning(ctx, job.ID, filepath.Join(cfg.Paths.OutputDir, "f")); err != nil || !ok {
		t.Fatalf("MarkRunning failed: ok=%v err=%v", ok, err)
	}
	if ok, err := store.MarkFailed(ctx, job.ID, "encoder exited with status 1"); err != nil || !ok {
		t.Fatalf("MarkFailed failed: ok=%v err=%v", ok, err)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != queue.StatusFailed {
		t.Fatalf("expected failed status, got %s", fetched.Status)
	}
	if fetched.ErrorMessage != "encoder exited with status 1" {
		t.Fatalf("expected verbatim error message, got %q", fetched.ErrorMessage)
	}

	// The path is free for a fresh enqueue once the old job is terminal.
	_, added, err := store.Enqueue(ctx, job.SourcePath, queue.PriorityNormal)
	if err != nil {
		t.Fatalf("re-enqueue failed: %v", err)
	}
	if !added {
		t.Fatal("expected re-enqueue after failure to add a new job")
	}
}

func TestResetJobReturnsFailedJobToBackOfQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	failed := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "x.mkv"), queue.PriorityNormal)
	if ok, err := store.MarkRunning(ctx, failed.ID, filepath.Join(cfg.Paths.OutputDir, "x")); err != nil || !ok {
		t.Fatalf("MarkRunning failed: ok=%v err=%v", ok, err)
	}
	if ok, err := store.MarkFailed(ctx, failed.ID, "boom"); err != nil || !ok {
		t.Fatalf("MarkFailed failed: ok=%v err=%v", ok, err)
	}

	waiting := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "y.mkv"), queue.PriorityNormal)

	if ok, err := store.ResetJob(ctx, failed.ID); err != nil || !ok {
		t.Fatalf("ResetJob failed: ok=%v err=%v", ok, err)
	}
	assertQueueOrder(t, store, []int64{waiting.ID, failed.ID})

	fetched, err := store.GetByID(ctx, failed.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != queue.StatusQueued || fetched.ErrorMessage != "" {
		t.Fatalf("expected clean queued job after reset, got %#v", fetched)
	}
}

func TestResetJobRejectsNonTerminalJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "z.mkv"), queue.PriorityNormal)
	if ok, err := store.ResetJob(ctx, job.ID); err != nil || ok {
		t.Fatalf("expected ResetJob to reject a queued job, got ok=%v err=%v", ok, err)
	}
}

func TestPruneCompletedKeepsNewest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		job := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, fmt.Sprintf("c%d.mkv", i)), queue.PriorityNormal)
		if ok, err := store.MarkRunning(ctx, job.ID, filepath.Join(cfg.Paths.OutputDir, fmt.Sprintf("c%d", i))); err != nil || !ok {
			t.Fatalf("MarkRunning failed: ok=%v err=%v", ok, err)
		}
		if ok, err := store.MarkCompleted(ctx, job.ID); err != nil || !ok {
			t.Fatalf("MarkCompleted failed: ok=%v err=%v", ok, err)
		}
		ids = append(ids, job.ID)
	}

	pruned, err := store.PruneCompleted(ctx, 2)
	if err != nil {
		t.Fatalf("PruneCompleted failed: %v", err)
	}
	if pruned != 3 {
		t.Fatalf("expected 3 jobs pruned, got %d", pruned)
	}

	remaining, err := store.List(ctx, queue.StatusCompleted)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 completed jobs, got %d", len(remaining))
	}
	for _, job := range remaining {
		if job.ID != ids[3] && job.ID != ids[4] {
			t.Fatalf("expected newest completed jobs to survive, found %d", job.ID)
		}
	}
}

func TestResetOrphanedRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "orphan.mkv"), queue.PriorityNormal)
	if ok, err := store.MarkRunning(ctx, job.ID, filepath.Join(cfg.Paths.OutputDir, "orphan")); err != nil || !ok {
		t.Fatalf("MarkRunning failed: ok=%v err=%v", ok, err)
	}

	count, err := store.ResetOrphanedRunning(ctx)
	if err != nil {
		t.Fatalf("ResetOrphanedRunning failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 job reset, got %d", count)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != queue.StatusQueued {
		t.Fatalf("expected queued status, got %s", fetched.Status)
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "q1.mkv"), queue.PriorityNormal)
	running := testsupport.Enqueue(t, store, filepath.Join(cfg.Paths.LibraryDir, "q2.mkv"), queue.PriorityNormal)
	if ok, err := store.MarkRunning(ctx, running.ID, filepath.Join(cfg.Paths.OutputDir, "q2")); err != nil || !ok {
		t.Fatalf("MarkRunning failed: ok=%v err=%v", ok, err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 2 || health.Queued != 1 || health.Running != 1 {
		t.Fatalf("unexpected health summary: %+v", health)
	}

	dbHealth, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !dbHealth.DatabaseExists || !dbHealth.TableExists || !dbHealth.IntegrityCheck {
		t.Fatalf("unexpected database health: %+v", dbHealth)
	}
	if dbHealth.TotalJobs != 2 {
		t.Fatalf("expected 2 jobs in database, got %d", dbHealth.TotalJobs)
	}
}

func assertQueueOrder(t *testing.T, store *queue.Store, want []int64) {
	t.Helper()
	jobs, err := store.List(context.Background(), queue.StatusQueued)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != len(want) {
		t.Fatalf("expected %d queued jobs, got %d", len(want), len(jobs))
	}
	for i, job := range jobs {
		if job.ID != want[i] {
			got := make([]int64, len(jobs))
			for j, item := range jobs {
				got[j] = item.ID
			}
			t.Fatalf("expected queue order %v, got %v", want, got)
		}
	}
}
