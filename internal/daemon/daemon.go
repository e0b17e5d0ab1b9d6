package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"reelstream/internal/buffer"
	"reelstream/internal/catalog"
	"reelstream/internal/config"
	"reelstream/internal/encoder"
	"reelstream/internal/logging"
	"reelstream/internal/logs"
	"reelstream/internal/notifications"
	"reelstream/internal/queue"
	"reelstream/internal/scanner"
	"reelstream/internal/scheduler"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	catalog  *catalog.Store
	enc      *encoder.Encoder
	sched    *scheduler.Scheduler
	registry *buffer.Registry
	scans    *scanner.Manager
	notifier notifications.Service

	reconciler *catalog.Reconciler

	lockPath string
	lock     *flock.Flock
	logPath  string

	// lifecycle serializes Start and Stop; running stays an atomic so
	// status paths can read it without the lock.
	lifecycle sync.Mutex
	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, catalogStore *catalog.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || catalogStore == nil {
		return nil, errors.New("daemon requires config, queue store, and catalog store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	enc := encoder.New(cfg, logger)
	notifier := notifications.NewService(cfg)
	sched := scheduler.New(cfg, store, enc, &notifications.SchedulerAdapter{Service: notifier}, logger)

	sc := scanner.New(cfg, store, func(path string) bool {
		return encoder.ManifestExists(enc.OutputDirFor(path))
	}, logger)

	lockPath := filepath.Join(cfg.Paths.LogDir, "reelstreamd.lock")
	return &Daemon{
		cfg:        cfg,
		logger:     logging.WithComponent(logger, "daemon"),
		store:      store,
		catalog:    catalogStore,
		enc:        enc,
		sched:      sched,
		registry:   buffer.NewRegistry(bufferThresholds(cfg)),
		scans:      scanner.NewManager(sc, logger),
		notifier:   notifier,
		reconciler: catalog.NewReconciler(catalogStore, store, logger),
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
		logPath:    logs.DaemonLogPath(cfg),
	}, nil
}

func bufferThresholds(cfg *config.Config) buffer.Thresholds {
	return buffer.Thresholds{
		AggressiveSpeed:   cfg.Buffering.AggressiveSpeed,
		ConservativeSpeed: cfg.Buffering.ConservativeSpeed,
		AverageWindow:     cfg.Buffering.AverageWindow,
		SlowdownWindow:    cfg.Buffering.SlowdownWindow,
		SampleCapacity:    cfg.Buffering.SampleCapacity,
	}
}

// Start acquires the daemon lock, requeues orphaned running jobs, and
// launches the scheduler and the reconcile loop.
func (d *Daemon) Start(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelstream daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	requeued, err := d.store.ResetOrphanedRunning(d.ctx)
	if err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx, d.cancel = nil, nil
		return fmt.Errorf("requeue orphaned jobs: %w", err)
	}
	if requeued > 0 {
		d.logger.Warn("requeued jobs orphaned by previous daemon", logging.Int64("count", requeued))
	}

	d.sched.Start(d.ctx)
	d.wg.Add(1)
	go d.reconcileLoop(d.ctx)

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.sched.Stop()
	d.scans.Close()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close releases all daemon resources.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	if d.catalog != nil {
		errs = append(errs, d.catalog.Close())
	}
	return errors.Join(errs...)
}

// reconcileLoop runs the catalog reconciler on its configured interval.
func (d *Daemon) reconcileLoop(ctx context.Context) {
	defer d.wg.Done()
	interval := time.Duration(d.cfg.Workflow.ReconcileInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := d.reconciler.Run(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					d.logger.Error("reconcile pass failed", logging.Error(err))
				}
				continue
			}
			if stats.MarkedReady > 0 || stats.MarkedNotReady > 0 || stats.Unmatched > 0 {
				d.logger.Info("reconcile pass finished",
					logging.Int("checked", stats.Checked),
					logging.Int("marked_ready", stats.MarkedReady),
					logging.Int("marked_not_ready", stats.MarkedNotReady),
					logging.Int("unmatched", stats.Unmatched),
				)
			}
		}
	}
}

// Running reports whether Start has completed without a matching Stop.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status is the aggregate daemon state reported to control clients.
type Status struct {
	Running        bool
	PID            int
	QueueDBPath    string
	CatalogDBPath  string
	LockPath       string
	LogPath        string
	Scheduler      scheduler.Stats
	BufferSessions int
}

// Status snapshots the daemon, its worker pool, and its storage paths.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		QueueDBPath:    d.store.Path(),
		CatalogDBPath:  d.catalog.Path(),
		LockPath:       d.lockPath,
		LogPath:        d.logPath,
		BufferSessions: d.registry.Len(),
	}
	stats, err := d.sched.Stats(ctx)
	if err != nil {
		d.logger.Warn("failed to collect scheduler stats", logging.Error(err))
	} else {
		status.Scheduler = stats
	}
	return status
}

// PauseScheduler halts new dequeues; active encodes finish.
func (d *Daemon) PauseScheduler() {
	d.sched.Pause()
}

// ResumeScheduler re-enables dequeuing.
func (d *Daemon) ResumeScheduler() {
	d.sched.Resume()
}

// SchedulerStats returns the worker pool snapshot.
func (d *Daemon) SchedulerStats(ctx context.Context) (scheduler.Stats, error) {
	return d.sched.Stats(ctx)
}

// ListQueue returns jobs filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Job, error) {
	return d.store.List(ctx, statuses...)
}

// GetJob returns a single job by id, or nil when unknown.
func (d *Daemon) GetJob(ctx context.Context, id int64) (*queue.Job, error) {
	return d.store.GetByID(ctx, id)
}

// AddFile enqueues a source file, validating it exists and carries a
// supported extension.
func (d *Daemon) AddFile(ctx context.Context, sourcePath string, priority queue.Priority) (*queue.Job, bool, error) {
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return nil, false, errors.New("source path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, false, fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, false, fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return nil, false, fmt.Errorf("source path %q is a directory", absPath)
	}
	ext := strings.ToLower(filepath.Ext(info.Name()))
	supported := false
	for _, allowed := range d.cfg.Transcoding.SourceExtensions {
		if ext == strings.ToLower(allowed) {
			supported = true
			break
		}
	}
	if !supported {
		return nil, false, fmt.Errorf("unsupported file extension %q", ext)
	}

	job, added, err := d.store.Enqueue(ctx, absPath, priority)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue file: %w", err)
	}
	if added {
		d.logger.Info("file queued",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.String("source", absPath),
			logging.String("priority", string(job.Priority)),
		)
		d.sched.Notify()
	}
	return job, added, nil
}

// StartScan launches a tracked background library scan.
func (d *Daemon) StartScan(mode string) (scanner.TaskSnapshot, error) {
	parsed, ok := scanner.ParsePriorityMode(mode)
	if !ok {
		return scanner.TaskSnapshot{}, fmt.Errorf("unknown scan mode %q", mode)
	}
	d.lifecycle.Lock()
	ctx := d.ctx
	d.lifecycle.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	return d.scans.Start(ctx, parsed), nil
}

// ScanStatus returns one scan task's snapshot.
func (d *Daemon) ScanStatus(id string) (scanner.TaskSnapshot, bool) {
	return d.scans.Status(id)
}

// ScanTasks returns all known scan tasks, most recent first.
func (d *Daemon) ScanTasks() []scanner.TaskSnapshot {
	return d.scans.List()
}

// MoveJob repositions a queued job. Direction is "up", "down", or "top".
func (d *Daemon) MoveJob(ctx context.Context, id int64, direction string) (bool, error) {
	switch direction {
	case "up":
		return d.store.MoveUp(ctx, id)
	case "down":
		return d.store.MoveDown(ctx, id)
	case "top":
		return d.store.MoveToTop(ctx, id)
	default:
		return false, fmt.Errorf("unknown move direction %q", direction)
	}
}

// ReorderJobs re-sequences the named queued jobs; unknown ids are skipped.
func (d *Daemon) ReorderJobs(ctx context.Context, ids []int64) ([]int64, error) {
	return d.store.Reorder(ctx, ids)
}

// RemoveJobs deletes jobs by id, skipping unknown ids. Returns the count
// removed.
func (d *Daemon) RemoveJobs(ctx context.Context, ids []int64) (int64, error) {
	var removed int64
	for _, id := range ids {
		ok, err := d.store.Remove(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// RemoveDuplicates collapses queued entries sharing a source path.
func (d *Daemon) RemoveDuplicates(ctx context.Context) (int64, error) {
	return d.store.RemoveDuplicates(ctx)
}

// CancelJob cancels a queued or running job.
func (d *Daemon) CancelJob(ctx context.Context, id int64) (bool, error) {
	return d.sched.CancelJob(ctx, id)
}

// ResetJob returns a failed or canceled job to the back of the queue.
// This is the only retry path; nothing retries automatically.
func (d *Daemon) ResetJob(ctx context.Context, id int64) (bool, error) {
	ok, err := d.store.ResetJob(ctx, id)
	if err == nil && ok {
		d.sched.Notify()
	}
	return ok, err
}

// CleanupTranscoded removes a source's output artifacts, forcing a
// re-encode on the next run. The reconciler clears the catalog ready flag
// on its next pass.
func (d *Daemon) CleanupTranscoded(sourcePath string) (string, error) {
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return "", errors.New("source path is required")
	}
	outputDir := d.enc.OutputDirFor(queue.NormalizeSourcePath(trimmed))
	encoder.CleanupArtifacts(outputDir)
	d.logger.Info("output artifacts removed",
		logging.String("source", trimmed),
		logging.String("output_dir", outputDir),
	)
	return outputDir, nil
}

// ClearQueue removes all jobs.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ClearCompleted removes completed jobs.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes failed jobs.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// BufferSession returns the controller for a session key, creating it on
// first use.
func (d *Daemon) BufferSession(key string) *buffer.Controller {
	return d.registry.Acquire(key)
}

// BufferStatus returns the status report for an existing session.
func (d *Daemon) BufferStatus(key string) (buffer.StatusReport, bool) {
	controller, ok := d.registry.Lookup(key)
	if !ok {
		return buffer.StatusReport{}, false
	}
	return controller.Report(), true
}

// DisposeBufferSession removes a session's controller.
func (d *Daemon) DisposeBufferSession(key string) bool {
	return d.registry.Dispose(key)
}

// BufferSessions lists active session keys.
func (d *Daemon) BufferSessions() []string {
	return d.registry.Keys()
}

// Reconcile runs one reconciliation pass on demand.
func (d *Daemon) Reconcile(ctx context.Context) (catalog.ReconcileStats, error) {
	return d.reconciler.Run(ctx)
}

// TestNotification sends a test push notification.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the daemon log file path.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// LockPath returns the single-instance lock file path.
func (d *Daemon) LockPath() string {
	return d.lockPath
}
