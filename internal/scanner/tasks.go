package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelstream/internal/logging"
	"reelstream/internal/metrics"
)

// TaskState is the lifecycle of a background scan.
type TaskState string

const (
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskCanceled  TaskState = "canceled"
)

// TaskSnapshot is a point-in-time copy of a scan task, safe to hand to
// callers.
type TaskSnapshot struct {
	ID         string       `json:"id"`
	Mode       PriorityMode `json:"mode"`
	State      TaskState    `json:"state"`
	Added      int          `json:"added"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt *time.Time   `json:"finishedAt,omitempty"`
}

type task struct {
	mu       sync.Mutex
	snapshot TaskSnapshot
	cancel   context.CancelFunc
	done     chan struct{}
}

func (t *task) view() TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot
}

// finishedTaskHistory bounds how many finished scan tasks stay queryable.
// Older ones are evicted when a new scan starts, the same way the queue
// keeps a bounded completed-jobs ring.
const finishedTaskHistory = 20

// Manager runs scans as tracked background tasks. Every scan gets an id
// its status can be queried by, and all tasks are joined on Close.
type Manager struct {
	scanner *Scanner
	logger  *slog.Logger

	mu    sync.Mutex
	tasks map[string]*task
	wg    sync.WaitGroup
}

// NewManager wraps a scanner with task tracking.
func NewManager(scanner *Scanner, logger *slog.Logger) *Manager {
	return &Manager{
		scanner: scanner,
		logger:  logging.WithComponent(logger, "scanner"),
		tasks:   make(map[string]*task),
	}
}

// Start launches a scan in the background and returns its initial
// snapshot. The scan inherits cancellation from ctx and can also be
// canceled individually through Cancel.
func (m *Manager) Start(ctx context.Context, mode PriorityMode) TaskSnapshot {
	scanCtx, cancel := context.WithCancel(ctx)
	t := &task{
		snapshot: TaskSnapshot{
			ID:        uuid.NewString(),
			Mode:      mode,
			State:     TaskRunning,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.tasks[t.snapshot.ID] = t
	m.pruneFinishedLocked()
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(t.done)
		defer cancel()

		added, err := m.scanner.Scan(scanCtx, mode)

		t.mu.Lock()
		now := time.Now().UTC()
		t.snapshot.Added = added
		t.snapshot.FinishedAt = &now
		switch {
		case err == nil:
			t.snapshot.State = TaskCompleted
		case errors.Is(err, context.Canceled):
			t.snapshot.State = TaskCanceled
		default:
			t.snapshot.State = TaskFailed
			t.snapshot.Error = err.Error()
		}
		metrics.ScanRunsTotal.WithLabelValues(string(t.snapshot.State)).Inc()
		metrics.ScanJobsAdded.Add(float64(added))
		t.mu.Unlock()

		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("scan task failed",
				logging.String("task_id", t.snapshot.ID),
				logging.Error(err),
			)
		}
	}()

	return t.view()
}

// Status returns the snapshot for one task id.
func (m *Manager) Status(id string) (TaskSnapshot, bool) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return TaskSnapshot{}, false
	}
	return t.view(), true
}

// List returns all known tasks, most recent first.
func (m *Manager) List() []TaskSnapshot {
	m.mu.Lock()
	snapshots := make([]TaskSnapshot, 0, len(m.tasks))
	for _, t := range m.tasks {
		snapshots = append(snapshots, t.view())
	}
	m.mu.Unlock()

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].StartedAt.After(snapshots[j].StartedAt)
	})
	return snapshots
}

// Cancel stops a running task. It returns false for unknown ids; canceling
// a finished task is a no-op.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	return true
}

// Wait blocks until the named task finishes. Mostly useful in tests and
// during shutdown.
func (m *Manager) Wait(id string) bool {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	<-t.done
	return true
}

// pruneFinishedLocked evicts the oldest finished tasks beyond the history
// bound. Running tasks are never evicted. Caller holds m.mu.
func (m *Manager) pruneFinishedLocked() {
	type finishedTask struct {
		id        string
		startedAt time.Time
	}
	var finished []finishedTask
	for id, t := range m.tasks {
		snap := t.view()
		if snap.State != TaskRunning {
			finished = append(finished, finishedTask{id: id, startedAt: snap.StartedAt})
		}
	}
	if len(finished) <= finishedTaskHistory {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].startedAt.Before(finished[j].startedAt)
	})
	for _, f := range finished[:len(finished)-finishedTaskHistory] {
		delete(m.tasks, f.id)
	}
}

// Close cancels every running task and waits for all of them to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	for _, t := range m.tasks {
		t.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}
