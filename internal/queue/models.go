package queue

import (
	"path/filepath"
	"strings"
	"time"
)

// Status represents the lifecycle of a transcode job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Priority orders queued jobs ahead of or behind their peers at insert time.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// UserCancelReason is the error message recorded when a user cancels a job.
const UserCancelReason = "Canceled by user"

// DaemonStopReason is the error message recorded when running jobs are
// canceled because the daemon shut down.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCanceled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Job represents a transcode job persisted in SQLite.
type Job struct {
	ID               int64
	SourcePath       string
	DisplayName      string
	OutputDir        string
	Status           Status
	Priority         Priority
	Position         int64
	ProgressPercent  float64
	FileSizeBytes    int64
	SourceModifiedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	LastProgressAt   *time.Time
	EncodeSpeed      float64
	ETASeconds       int64
	ErrorMessage     string
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Queued    int
	Running   int
	Completed int
	Failed    int
	Canceled  int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// ParsePriority converts a string into a known Priority. Empty input maps
// to PriorityNormal.
func ParsePriority(value string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(PriorityNormal):
		return PriorityNormal, true
	case string(PriorityHigh):
		return PriorityHigh, true
	default:
		return "", false
	}
}

// IsTerminal reports whether the job reached a final state.
func (j Job) IsTerminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the job occupies the dedup namespace, meaning a
// second job for the same source must not be enqueued.
func (j Job) IsActive() bool {
	return j.Status == StatusQueued || j.Status == StatusRunning
}

// NormalizeSourcePath canonicalizes a source path for dedup comparison.
// Relative paths are made absolute against the working directory.
func NormalizeSourcePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	cleaned := filepath.Clean(trimmed)
	if abs, err := filepath.Abs(cleaned); err == nil {
		cleaned = abs
	}
	return cleaned
}

// DisplayNameForPath derives the user-facing name shown in queue listings.
func DisplayNameForPath(path string) string {
	base := strings.TrimSpace(filepath.Base(path))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "unknown"
	}
	return base
}
