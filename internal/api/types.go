package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem describes a transcode job in a transport-friendly format.
type QueueItem struct {
	ID             int64   `json:"id"`
	SourcePath     string  `json:"sourcePath"`
	DisplayName    string  `json:"displayName"`
	OutputDir      string  `json:"outputDir,omitempty"`
	Status         string  `json:"status"`
	Priority       string  `json:"priority"`
	Position       int     `json:"position"`
	Progress       float64 `json:"progress"`
	FileSizeBytes  int64   `json:"fileSizeBytes,omitempty"`
	EncodeSpeed    float64 `json:"encodeSpeed,omitempty"`
	ETASeconds     int64   `json:"etaSeconds,omitempty"`
	ErrorMessage   string  `json:"errorMessage,omitempty"`
	CreatedAt      string  `json:"createdAt,omitempty"`
	UpdatedAt      string  `json:"updatedAt,omitempty"`
	StartedAt      string  `json:"startedAt,omitempty"`
	CompletedAt    string  `json:"completedAt,omitempty"`
	LastProgressAt string  `json:"lastProgressAt,omitempty"`
}

// ActiveJob mirrors a scheduler worker slot.
type ActiveJob struct {
	ID          int64   `json:"id"`
	SourcePath  string  `json:"sourcePath"`
	DisplayName string  `json:"displayName"`
	Percent     float64 `json:"percent"`
	Speed       float64 `json:"speed"`
	ETASeconds  int64   `json:"etaSeconds"`
}

// SchedulerStats summarizes the worker pool for status surfaces.
type SchedulerStats struct {
	IsRunning           bool           `json:"isRunning"`
	IsPaused            bool           `json:"isPaused"`
	Active              []ActiveJob    `json:"active"`
	ActiveCount         int            `json:"activeCount"`
	MaxConcurrent       int            `json:"maxConcurrent"`
	TotalPending        int            `json:"totalPending"`
	StatusCounts        map[string]int `json:"statusCounts"`
	EstimatedRemainingS int64          `json:"estimatedRemainingSeconds"`
}

// ActionResult is the uniform control-operation response: a structured
// success flag, an operator-facing message, and the updated snapshot.
type ActionResult struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	Snapshot *SchedulerStats `json:"snapshot,omitempty"`
}

// QueueListResponse wraps a collection of queue items.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueStatsResponse provides a normalized queue stats payload.
type QueueStatsResponse struct {
	Counts    map[string]int  `json:"counts"`
	Scheduler *SchedulerStats `json:"scheduler,omitempty"`
}

// ScanTask mirrors a tracked background scan.
type ScanTask struct {
	ID         string `json:"id"`
	Mode       string `json:"mode"`
	State      string `json:"state"`
	Added      int    `json:"added"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"startedAt,omitempty"`
	FinishedAt string `json:"finishedAt,omitempty"`
}
