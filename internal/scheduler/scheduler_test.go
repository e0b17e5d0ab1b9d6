package scheduler_test

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"reelstream/internal/config"
	"reelstream/internal/encoder"
	"reelstream/internal/logging"
	"reelstream/internal/queue"
	"reelstream/internal/scheduler"
	"reelstream/internal/testsupport"
)

// fakeRunner scripts encode outcomes per source path and records
// invocation order and peak concurrency.
type fakeRunner struct {
	outputRoot string
	behavior   func(ctx context.Context, spec encoder.RunSpec, onProgress func(encoder.Progress)) error

	mu        sync.Mutex
	runs      []string
	activeNow int
	maxActive int
}

func (f *fakeRunner) OutputDirFor(sourcePath string) string {
	return filepath.Join(f.outputRoot, filepath.Base(sourcePath)+".out")
}

func (f *fakeRunner) ProbeSourceDuration(ctx context.Context, sourcePath string) (time.Duration, error) {
	return 10 * time.Second, nil
}

func (f *fakeRunner) Run(ctx context.Context, spec encoder.RunSpec, onProgress func(encoder.Progress)) (*encoder.Result, error) {
	f.mu.Lock()
	f.runs = append(f.runs, spec.SourcePath)
	f.activeNow++
	if f.activeNow > f.maxActive {
		f.maxActive = f.activeNow
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.activeNow--
		f.mu.Unlock()
	}()

	if f.behavior != nil {
		if err := f.behavior(ctx, spec, onProgress); err != nil {
			return nil, err
		}
	}
	return &encoder.Result{OutputDir: spec.OutputDir}, nil
}

func (f *fakeRunner) runOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.runs...)
}

func (f *fakeRunner) peakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

func newScheduler(t *testing.T, cfg *config.Config, store *queue.Store, runner *fakeRunner) *scheduler.Scheduler {
	t.Helper()
	runner.outputRoot = cfg.Paths.OutputDir
	sched := scheduler.New(cfg, store, runner, nil, logging.NewNop())
	t.Cleanup(sched.Stop)
	return sched
}

func waitForStatus(t *testing.T, store *queue.Store, id int64, want queue.Status) *queue.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if job != nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := store.GetByID(context.Background(), id)
	t.Fatalf("job %d never reached %s, last: %+v", id, want, job)
	return nil
}

func TestRunsQueuedJobsToCompletion(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrent(1))
	store := testsupport.MustOpenStore(t, cfg)
	runner := &fakeRunner{
		behavior: func(ctx context.Context, spec encoder.RunSpec, onProgress func(encoder.Progress)) error {
			onProgress(encoder.Progress{Percent: 50, Speed: 3.0, ETA: 2 * time.Second})
			return nil
		},
	}

	a := testsupport.Enqueue(t, store, "/library/a.mkv", queue.PriorityNormal)
	b := testsupport.Enqueue(t, store, "/library/b.mkv", queue.PriorityNormal)

	sched := newScheduler(t, cfg, store, runner)
	sched.Start(context.Background())

	doneA := waitForStatus(t, store, a.ID, queue.StatusCompleted)
	waitForStatus(t, store, b.ID, queue.StatusCompleted)

	if doneA.ProgressPercent != 100 {
		t.Fatalf("expected completed job at 100%%, got %v", doneA.ProgressPercent)
	}
	if doneA.CompletedAt == nil {
		t.Fatal("expected CompletedAt set")
	}
}

func TestDequeueOrderIsPriorityFirstThenInsertion(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrent(1))
	store := testsupport.MustOpenStore(t, cfg)
	runner := &fakeRunner{}

	a := testsupport.Enqueue(t, store, "/library/a.mkv", queue.PriorityNormal)
	b := testsupport.Enqueue(t, store, "/library/b.mkv", queue.PriorityHigh)
	c := testsupport.Enqueue(t, store, "/library/c.mkv", queue.PriorityNormal)

	sched := newScheduler(t, cfg, store, runner)
	sched.Start(context.Background())

	waitForStatus(t, store, a.ID, queue.StatusCompleted)
	waitForStatus(t, store, b.ID, queue.StatusCompleted)
	waitForStatus(t, store, c.ID, queue.StatusCompleted)

	order := runner.runOrder()
	want := []string{"/library/b.mkv", "/library/a.mkv", "/library/c.mkv"}
	if len(order) != len(want) {
		t.Fatalf("expected %d runs, got %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("run order mismatch: got %v want %v", order, want)
		}
	}
}

func TestConcurrencyNeverExceedsMax(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrent(2))
	store := testsupport.MustOpenStore(t, cfg)
	runner := &fakeRunner{
		behavior: func(ctx context.Context, spec encoder.RunSpec, onProgress func(encoder.Progress)) error {
			time.Sleep(50 * time.Millisecond)
			return nil
		},
	}

	var ids []int64
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		job := testsupport.Enqueue(t, store, "/library/"+name+".mkv", queue.PriorityNormal)
		ids = append(ids, job.ID)
	}

	sched := newScheduler(t, cfg, store, runner)
	sched.Start(context.Background())

	for _, id := range ids {
		waitForStatus(t, store, id, queue.StatusCompleted)
	}
	if peak := runner.peakConcurrency(); peak > 2 {
		t.Fatalf("concurrency exceeded max: %d", peak)
	}
}

func TestCancelRunningJobFreesSlot(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrent(1))
	store := testsupport.MustOpenStore(t, cfg)

	started := make(chan string, 4)
	runner := &fakeRunner{
		behavior: func(ctx context.Context, spec encoder.RunSpec, onProgress func(encoder.Progress)) error {
			started <- spec.SourcePath
			if filepath.Base(spec.SourcePath) == "stuck.mkv" {
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		},
	}

	stuck := testsupport.Enqueue(t, store, "/library/stuck.mkv", queue.PriorityNormal)
	next := testsupport.Enqueue(t, store, "/library/next.mkv", queue.PriorityNormal)

	sched := newScheduler(t, cfg, store, runner)
	sched.Start(context.Background())

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first job never started")
	}

	ok, err := sched.CancelJob(context.Background(), stuck.ID)
	if err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}

	canceled := waitForStatus(t, store, stuck.ID, queue.StatusCanceled)
	if canceled.ErrorMessage != queue.UserCancelReason {
		t.Fatalf("expected user cancel reason, got %q", canceled.ErrorMessage)
	}
	waitForStatus(t, store, next.ID, queue.StatusCompleted)
}

func TestCancelQueuedJob(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrent(1))
	store := testsupport.MustOpenStore(t, cfg)
	runner := &fakeRunner{}

	job := testsupport.Enqueue(t, store, "/library/waiting.mkv", queue.PriorityNormal)

	sched := newScheduler(t, cfg, store, runner)

	ok, err := sched.CancelJob(context.Background(), job.ID)
	if err != nil || !ok {
		t.Fatalf("cancel queued: ok=%v err=%v", ok, err)
	}
	waitForStatus(t, store, job.ID, queue.StatusCanceled)

	ok, err = sched.CancelJob(context.Background(), 9999)
	if err != nil {
		t.Fatalf("cancel unknown: %v", err)
	}
	if ok {
		t.Fatal("expected cancel of unknown id to report false")
	}
}

func TestPauseHaltsNewDequeues(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrent(1))
	store := testsupport.MustOpenStore(t, cfg)
	runner := &fakeRunner{}

	sched := newScheduler(t, cfg, store, runner)
	sched.Start(context.Background())
	sched.Pause()

	job := testsupport.Enqueue(t, store, "/library/parked.mkv", queue.PriorityNormal)

	time.Sleep(150 * time.Millisecond)
	current, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if current.Status != queue.StatusQueued {
		t.Fatalf("expected job to stay queued while paused, got %s", current.Status)
	}
	if !sched.IsPaused() {
		t.Fatal("expected IsPaused true")
	}

	sched.Resume()
	waitForStatus(t, store, job.ID, queue.StatusCompleted)
}

func TestFailedJobIsNeverRetried(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrent(1))
	store := testsupport.MustOpenStore(t, cfg)
	runner := &fakeRunner{
		behavior: func(ctx context.Context, spec encoder.RunSpec, onProgress func(encoder.Progress)) error {
			return &encoder.RunError{Message: "ffmpeg exited with status 1", Stderr: "broken input\n", ExitCode: 1}
		},
	}

	job := testsupport.Enqueue(t, store, "/library/broken.mkv", queue.PriorityNormal)

	sched := newScheduler(t, cfg, store, runner)
	sched.Start(context.Background())

	failed := waitForStatus(t, store, job.ID, queue.StatusFailed)
	if failed.ErrorMessage == "" {
		t.Fatal("expected operator-visible failure message")
	}

	time.Sleep(200 * time.Millisecond)
	if got := len(runner.runOrder()); got != 1 {
		t.Fatalf("expected exactly one attempt, got %d", got)
	}
}

func TestStopCancelsActiveRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrent(1))
	store := testsupport.MustOpenStore(t, cfg)

	started := make(chan struct{}, 1)
	runner := &fakeRunner{
		behavior: func(ctx context.Context, spec encoder.RunSpec, onProgress func(encoder.Progress)) error {
			started <- struct{}{}
			<-ctx.Done()
			return ctx.Err()
		},
	}

	job := testsupport.Enqueue(t, store, "/library/longrunning.mkv", queue.PriorityNormal)

	sched := newScheduler(t, cfg, store, runner)
	sched.Start(context.Background())

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	sched.Stop()

	stopped := waitForStatus(t, store, job.ID, queue.StatusCanceled)
	if stopped.ErrorMessage != queue.DaemonStopReason {
		t.Fatalf("expected daemon stop reason, got %q", stopped.ErrorMessage)
	}
	if sched.IsRunning() {
		t.Fatal("expected scheduler stopped")
	}
}

func TestStalledJobFailsNotCanceled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrent(1))
	cfg.Transcoding.StaleTimeout = 1
	cfg.Workflow.QueuePollInterval = 1
	store := testsupport.MustOpenStore(t, cfg)

	runner := &fakeRunner{
		behavior: func(ctx context.Context, spec encoder.RunSpec, onProgress func(encoder.Progress)) error {
			// One heartbeat, then silence until the watchdog kills the run.
			onProgress(encoder.Progress{Percent: 5, Speed: 1.0, ETA: time.Minute})
			<-ctx.Done()
			return ctx.Err()
		},
	}

	job := testsupport.Enqueue(t, store, "/library/frozen.mkv", queue.PriorityNormal)

	sched := newScheduler(t, cfg, store, runner)
	sched.Start(context.Background())

	failed := waitForStatus(t, store, job.ID, queue.StatusFailed)
	if !strings.Contains(failed.ErrorMessage, "stalled") {
		t.Fatalf("expected stalled failure message, got %q", failed.ErrorMessage)
	}

	// The worker's cancellation path must not rewrite the outcome.
	time.Sleep(200 * time.Millisecond)
	final, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != queue.StatusFailed {
		t.Fatalf("stalled job rewritten to %s", final.Status)
	}
}

func TestStatsReflectsActiveRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrent(2))
	store := testsupport.MustOpenStore(t, cfg)

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	runner := &fakeRunner{
		behavior: func(ctx context.Context, spec encoder.RunSpec, onProgress func(encoder.Progress)) error {
			onProgress(encoder.Progress{Percent: 40, Speed: 2.5, ETA: 30 * time.Second})
			started <- struct{}{}
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}

	one := testsupport.Enqueue(t, store, "/library/one.mkv", queue.PriorityNormal)
	testsupport.Enqueue(t, store, "/library/two.mkv", queue.PriorityNormal)
	testsupport.Enqueue(t, store, "/library/three.mkv", queue.PriorityNormal)

	sched := newScheduler(t, cfg, store, runner)
	sched.Start(context.Background())

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatal("workers never started")
		}
	}

	stats, err := sched.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if !stats.IsRunning || stats.IsPaused {
		t.Fatalf("unexpected flags: %+v", stats)
	}
	if stats.ActiveCount != 2 || stats.MaxConcurrent != 2 {
		t.Fatalf("expected 2 active of 2, got %+v", stats)
	}
	if stats.TotalPending != 1 {
		t.Fatalf("expected 1 pending, got %d", stats.TotalPending)
	}
	if stats.EstimatedRemainingS != 30 {
		t.Fatalf("expected 30s ETA, got %d", stats.EstimatedRemainingS)
	}

	close(release)
	waitForStatus(t, store, one.ID, queue.StatusCompleted)
}
