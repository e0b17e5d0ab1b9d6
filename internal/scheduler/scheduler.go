package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"reelstream/internal/config"
	"reelstream/internal/encoder"
	"reelstream/internal/logging"
	"reelstream/internal/metrics"
	"reelstream/internal/queue"
)

// Runner abstracts the encoder so tests can substitute scripted runs.
type Runner interface {
	OutputDirFor(sourcePath string) string
	ProbeSourceDuration(ctx context.Context, sourcePath string) (time.Duration, error)
	Run(ctx context.Context, spec encoder.RunSpec, onProgress func(encoder.Progress)) (*encoder.Result, error)
}

// Notifier receives job lifecycle events. May be nil.
type Notifier interface {
	JobCompleted(job *queue.Job)
	JobFailed(job *queue.Job, message string)
	QueueDrained()
}

type activeRun struct {
	job       *queue.Job
	cancel    context.CancelFunc
	startedAt time.Time

	mu           sync.Mutex
	percent      float64
	speed        float64
	etaSeconds   int64
	userCanceled bool
	staleFailed  bool
}

func (r *activeRun) progress() (percent, speed float64, eta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.percent, r.speed, r.etaSeconds
}

func (r *activeRun) markUserCanceled() {
	r.mu.Lock()
	r.userCanceled = true
	r.mu.Unlock()
	r.cancel()
}

func (r *activeRun) wasUserCanceled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userCanceled
}

// markStaleFailed flags the run as already failed by the stale watchdog so
// the worker's cancellation path leaves the stored status alone. The flag
// must be set before the cancel so the worker can never observe one without
// the other.
func (r *activeRun) markStaleFailed() {
	r.mu.Lock()
	r.staleFailed = true
	r.mu.Unlock()
	r.cancel()
}

func (r *activeRun) wasStaleFailed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.staleFailed
}

// Scheduler owns the worker slots and the scheduling loop.
type Scheduler struct {
	store    *queue.Store
	runner   Runner
	notifier Notifier
	logger   *slog.Logger

	maxConcurrent    int
	staleTimeout     time.Duration
	pollInterval     time.Duration
	completedHistory int

	mu            sync.Mutex
	running       bool
	paused        bool
	active        map[int64]*activeRun
	cancel        context.CancelFunc
	drainedSignal bool

	wake chan struct{}
	wg   sync.WaitGroup
}

// ActiveJob is a point-in-time view of one running slot.
type ActiveJob struct {
	ID          int64   `json:"id"`
	SourcePath  string  `json:"sourcePath"`
	DisplayName string  `json:"displayName"`
	Percent     float64 `json:"percent"`
	Speed       float64 `json:"speed"`
	ETASeconds  int64   `json:"etaSeconds"`
}

// Stats is the scheduler status snapshot.
type Stats struct {
	IsRunning           bool                 `json:"isRunning"`
	IsPaused            bool                 `json:"isPaused"`
	Active              []ActiveJob          `json:"active"`
	ActiveCount         int                  `json:"activeCount"`
	MaxConcurrent       int                  `json:"maxConcurrent"`
	TotalPending        int                  `json:"totalPending"`
	StatusCounts        map[queue.Status]int `json:"statusCounts"`
	EstimatedRemainingS int64                `json:"estimatedRemainingSeconds"`
}

// New builds a scheduler over the queue store and encoder.
func New(cfg *config.Config, store *queue.Store, runner Runner, notifier Notifier, logger *slog.Logger) *Scheduler {
	maxConcurrent := cfg.Transcoding.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	poll := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Scheduler{
		store:            store,
		runner:           runner,
		notifier:         notifier,
		logger:           logging.WithComponent(logger, "scheduler"),
		maxConcurrent:    maxConcurrent,
		staleTimeout:     time.Duration(cfg.Transcoding.StaleTimeout) * time.Second,
		pollInterval:     poll,
		completedHistory: cfg.Transcoding.CompletedHistory,
		active:           make(map[int64]*activeRun),
		wake:             make(chan struct{}, 1),
	}
}

// Start enables dequeuing and launches the scheduling loop. Calling Start
// on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.paused = false
		s.mu.Unlock()
		s.poke()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.paused = false
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(loopCtx)
	s.logger.Info("scheduler started", logging.Int("max_concurrent", s.maxConcurrent))
}

// Pause halts new dequeues. Active runs keep going until they finish.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.logger.Info("scheduler paused")
}

// Resume re-enables dequeuing and immediately tries to fill idle slots.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.logger.Info("scheduler resumed")
	s.poke()
}

// Notify wakes the scheduling loop so it re-checks the queue. Unlike
// Resume it leaves the pause state alone.
func (s *Scheduler) Notify() {
	s.poke()
}

// Stop halts dequeuing and cancels every active run, then waits for the
// loop and workers to exit. Canceled jobs record the daemon-stop reason.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	runs := make([]*activeRun, 0, len(s.active))
	for _, run := range s.active {
		runs = append(runs, run)
	}
	s.mu.Unlock()

	for _, run := range runs {
		run.cancel()
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// CancelJob cancels one job. A running job's process group is killed and
// its partial output removed; a queued job is canceled in place. Returns
// false for unknown or already-terminal jobs.
func (s *Scheduler) CancelJob(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	run, isActive := s.active[id]
	s.mu.Unlock()

	if isActive {
		run.markUserCanceled()
		return true, nil
	}
	return s.store.MarkCanceled(ctx, id, queue.UserCancelReason)
}

// IsPaused reports the cooperative-pause flag.
func (s *Scheduler) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// IsRunning reports whether the scheduling loop is live.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stats assembles the status snapshot, including an ETA derived from the
// average speed and remaining runtime of active jobs.
func (s *Scheduler) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	metrics.JobsQueued.Set(float64(counts[queue.StatusQueued]))

	s.mu.Lock()
	stats := Stats{
		IsRunning:     s.running,
		IsPaused:      s.paused,
		MaxConcurrent: s.maxConcurrent,
		StatusCounts:  counts,
		TotalPending:  counts[queue.StatusQueued],
	}
	var maxETA int64
	for _, run := range s.active {
		percent, speed, eta := run.progress()
		stats.Active = append(stats.Active, ActiveJob{
			ID:          run.job.ID,
			SourcePath:  run.job.SourcePath,
			DisplayName: run.job.DisplayName,
			Percent:     percent,
			Speed:       speed,
			ETASeconds:  eta,
		})
		if eta > maxETA {
			maxETA = eta
		}
	}
	stats.ActiveCount = len(stats.Active)
	s.mu.Unlock()

	stats.EstimatedRemainingS = maxETA
	return stats, nil
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.fillSlots(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.failStaleRuns(ctx)
			s.fillSlots(ctx)
		case <-s.wake:
			s.fillSlots(ctx)
		}
	}
}

// fillSlots dequeues into idle worker slots until the pool is full or the
// queue is empty.
func (s *Scheduler) fillSlots(ctx context.Context) {
	for {
		s.mu.Lock()
		if !s.running || s.paused || len(s.active) >= s.maxConcurrent {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		job, err := s.store.NextForRun(ctx)
		if err != nil {
			s.logger.Error("dequeue failed", logging.Error(err))
			return
		}
		if job == nil {
			s.notifyDrained(ctx)
			return
		}
		if !s.launch(ctx, job) {
			return
		}
	}
}

// launch reserves a slot for the job, claims it in the store, and starts
// its worker. Returns false when no slot could be reserved.
func (s *Scheduler) launch(ctx context.Context, job *queue.Job) bool {
	outputDir := s.runner.OutputDirFor(job.SourcePath)
	runCtx, cancel := context.WithCancel(ctx)
	run := &activeRun{job: job, cancel: cancel, startedAt: time.Now()}

	// Reserve the slot before touching the store so a concurrent Stop or
	// Pause never leaves a claimed job without a worker.
	s.mu.Lock()
	if !s.running || s.paused || len(s.active) >= s.maxConcurrent {
		s.mu.Unlock()
		cancel()
		return false
	}
	s.active[job.ID] = run
	s.drainedSignal = false
	s.mu.Unlock()

	claimed, err := s.store.MarkRunning(ctx, job.ID, outputDir)
	if err != nil || !claimed {
		s.mu.Lock()
		delete(s.active, job.ID)
		s.mu.Unlock()
		cancel()
		if err != nil {
			s.logger.Error("mark running failed", logging.Int64("job_id", job.ID), logging.Error(err))
			return false
		}
		// The job left queued state underneath us; try the next one.
		return true
	}

	s.wg.Add(1)
	go s.runWorker(runCtx, run, outputDir)
	return true
}

func (s *Scheduler) runWorker(ctx context.Context, run *activeRun, outputDir string) {
	defer s.wg.Done()
	job := run.job
	metrics.JobsActive.Inc()
	defer func() {
		run.cancel()
		s.mu.Lock()
		delete(s.active, job.ID)
		s.mu.Unlock()
		metrics.JobsActive.Dec()
		s.poke()
	}()

	logger := s.logger.With(logging.Int64("job_id", job.ID), logging.String("source", job.SourcePath))
	logger.Info("job started", logging.String("output_dir", outputDir))

	duration, err := s.runner.ProbeSourceDuration(ctx, job.SourcePath)
	if err != nil {
		logger.Warn("duration probe failed, percent tracking disabled", logging.Error(err))
	}

	// Store writes after the run use a fresh context; the run context is
	// already canceled on the paths that need them most.
	storeCtx := context.Background()

	_, runErr := s.runner.Run(ctx, encoder.RunSpec{
		SourcePath: job.SourcePath,
		OutputDir:  outputDir,
		Duration:   duration,
	}, func(p encoder.Progress) {
		eta := int64(p.ETA / time.Second)
		run.mu.Lock()
		if p.Percent > run.percent {
			run.percent = p.Percent
		}
		run.speed = p.Speed
		run.etaSeconds = eta
		run.mu.Unlock()
		metrics.EncodeSpeed.Set(p.Speed)
		if err := s.store.MarkProgress(storeCtx, job.ID, p.Percent, p.Speed, eta); err != nil {
			logger.Warn("progress write failed", logging.Error(err))
		}
	})

	switch {
	case runErr == nil:
		if _, err := s.store.MarkCompleted(storeCtx, job.ID); err != nil {
			logger.Error("mark completed failed", logging.Error(err))
		}
		logger.Info("job completed", logging.Duration("elapsed", time.Since(run.startedAt)))
		metrics.JobsTotal.WithLabelValues("completed").Inc()
		metrics.EncodeDuration.Observe(time.Since(run.startedAt).Seconds())
		if s.notifier != nil {
			s.notifier.JobCompleted(job)
		}
		s.pruneCompleted(storeCtx)

	case errors.Is(runErr, context.Canceled):
		encoder.CleanupArtifacts(outputDir)
		if run.wasStaleFailed() {
			// The watchdog already recorded the failure.
			logger.Info("stalled worker exited")
			metrics.JobsTotal.WithLabelValues("failed").Inc()
			return
		}
		reason := queue.DaemonStopReason
		if run.wasUserCanceled() {
			reason = queue.UserCancelReason
		}
		if _, err := s.store.MarkCanceled(storeCtx, job.ID, reason); err != nil {
			logger.Error("mark canceled failed", logging.Error(err))
		}
		logger.Info("job canceled", logging.String("reason", reason))
		metrics.JobsTotal.WithLabelValues("canceled").Inc()

	default:
		message := runErr.Error()
		var encodeErr *encoder.RunError
		if errors.As(runErr, &encodeErr) && encodeErr.Stderr != "" {
			message = encodeErr.Message + ": " + lastLine(encodeErr.Stderr)
		}
		if _, err := s.store.MarkFailed(storeCtx, job.ID, message); err != nil {
			logger.Error("mark failed failed", logging.Error(err))
		}
		logger.Error("job failed", logging.String("reason", message))
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		if s.notifier != nil {
			s.notifier.JobFailed(job, message)
		}
	}
}

// failStaleRuns fails running jobs whose heartbeat has gone quiet past the
// stale timeout and reclaims their slots.
func (s *Scheduler) failStaleRuns(ctx context.Context) {
	if s.staleTimeout <= 0 {
		return
	}
	stale, err := s.store.StaleRunning(ctx, time.Now().Add(-s.staleTimeout))
	if err != nil {
		s.logger.Error("stale check failed", logging.Error(err))
		return
	}
	for _, job := range stale {
		s.mu.Lock()
		run, isActive := s.active[job.ID]
		s.mu.Unlock()
		if !isActive {
			continue
		}
		// Record the failure before canceling so the worker's cancellation
		// path cannot win the race and mark the job canceled instead.
		message := "stalled: no progress for " + s.staleTimeout.String()
		failed, err := s.store.MarkFailed(ctx, job.ID, message)
		if err != nil {
			s.logger.Error("mark stale job failed", logging.Int64("job_id", job.ID), logging.Error(err))
			continue
		}
		if !failed {
			// The job reached a terminal state on its own since the query.
			continue
		}
		run.markStaleFailed()
		s.logger.Error("job stalled",
			logging.Int64("job_id", job.ID),
			logging.String("source", job.SourcePath),
			logging.Duration("stale_timeout", s.staleTimeout),
		)
		if s.notifier != nil {
			s.notifier.JobFailed(job, message)
		}
	}
}

func (s *Scheduler) pruneCompleted(ctx context.Context) {
	if s.completedHistory <= 0 {
		return
	}
	if _, err := s.store.PruneCompleted(ctx, s.completedHistory); err != nil {
		s.logger.Warn("prune completed failed", logging.Error(err))
	}
}

// notifyDrained fires the queue-drained notification once per transition
// to an idle, empty queue.
func (s *Scheduler) notifyDrained(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	s.mu.Lock()
	idle := len(s.active) == 0 && !s.drainedSignal
	s.mu.Unlock()
	if !idle {
		return
	}
	counts, err := s.store.Stats(ctx)
	if err != nil || counts[queue.StatusQueued] > 0 || counts[queue.StatusRunning] > 0 {
		return
	}
	s.mu.Lock()
	already := s.drainedSignal
	s.drainedSignal = true
	s.mu.Unlock()
	if !already {
		s.notifier.QueueDrained()
	}
}

// lastLine picks the final non-empty stderr line, usually the most
// specific ffmpeg diagnostic.
func lastLine(text string) string {
	result := ""
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			result = trimmed
		}
	}
	if result == "" {
		return text
	}
	return result
}
