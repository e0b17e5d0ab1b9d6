package ipc

import (
	"reelstream/internal/api"
	"reelstream/internal/buffer"
)

// StartRequest starts background processing.
type StartRequest struct{}

// StartResponse indicates whether processing was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// PauseRequest pauses new job dequeues.
type PauseRequest struct{}

// PauseResponse carries the post-pause snapshot.
type PauseResponse struct {
	Result api.ActionResult `json:"result"`
}

// ResumeRequest resumes paused dequeuing.
type ResumeRequest struct{}

// ResumeResponse carries the post-resume snapshot.
type ResumeResponse struct {
	Result api.ActionResult `json:"result"`
}

// StopRequest stops background processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// QueueItem mirrors the HTTP API queue DTO for internal IPC callers.
type QueueItem = api.QueueItem

// SchedulerStats mirrors the HTTP API scheduler snapshot.
type SchedulerStats = api.SchedulerStats

// ScanTask mirrors the HTTP API scan task DTO.
type ScanTask = api.ScanTask

// StatusResponse represents combined daemon and scheduler status.
type StatusResponse struct {
	Running        bool           `json:"running"`
	PID            int            `json:"pid"`
	QueueDBPath    string         `json:"queue_db_path"`
	CatalogDBPath  string         `json:"catalog_db_path"`
	LockPath       string         `json:"lock_path"`
	LogPath        string         `json:"log_path"`
	Scheduler      SchedulerStats `json:"scheduler"`
	BufferSessions int            `json:"buffer_sessions"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueDescribeRequest fetches a single job by id.
type QueueDescribeRequest struct {
	ID int64 `json:"id"`
}

// QueueDescribeResponse contains a single job.
type QueueDescribeResponse struct {
	Item QueueItem `json:"item"`
}

// QueueAddRequest enqueues a single source file.
type QueueAddRequest struct {
	Path     string `json:"path"`
	Priority string `json:"priority"`
}

// QueueAddResponse reports the queued job. Added is false when the file
// was already queued or running.
type QueueAddResponse struct {
	Item  QueueItem `json:"item"`
	Added bool      `json:"added"`
}

// QueueScanRequest launches a background library scan.
type QueueScanRequest struct {
	Mode string `json:"mode"`
}

// QueueScanResponse returns the tracked scan task.
type QueueScanResponse struct {
	Task ScanTask `json:"task"`
}

// ScanStatusRequest fetches one scan task by id. An empty ID lists all
// known tasks.
type ScanStatusRequest struct {
	ID string `json:"id"`
}

// ScanStatusResponse returns matching scan tasks.
type ScanStatusResponse struct {
	Tasks []ScanTask `json:"tasks"`
}

// QueueMoveRequest repositions a queued job. Direction is "up", "down",
// or "top".
type QueueMoveRequest struct {
	ID        int64  `json:"id"`
	Direction string `json:"direction"`
}

// QueueMoveResponse reports whether the job moved.
type QueueMoveResponse struct {
	Moved bool `json:"moved"`
}

// QueueReorderRequest re-sequences queued jobs into the given order.
type QueueReorderRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueReorderResponse lists the ids applied, in final order.
type QueueReorderResponse struct {
	Applied []int64 `json:"applied"`
}

// QueueRemoveRequest removes specific jobs by id.
type QueueRemoveRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRemoveResponse reports number of removed entries.
type QueueRemoveResponse struct {
	Removed int64 `json:"removed"`
}

// QueueRemoveDuplicatesRequest collapses duplicate queued source paths.
type QueueRemoveDuplicatesRequest struct{}

// QueueRemoveDuplicatesResponse reports number of removed entries.
type QueueRemoveDuplicatesResponse struct {
	Removed int64 `json:"removed"`
}

// QueueCancelRequest cancels a queued or running job.
type QueueCancelRequest struct {
	ID int64 `json:"id"`
}

// QueueCancelResponse reports whether the job was canceled.
type QueueCancelResponse struct {
	Canceled bool `json:"canceled"`
}

// QueueResetRequest returns a failed or canceled job to the queue.
type QueueResetRequest struct {
	ID int64 `json:"id"`
}

// QueueResetResponse reports whether the job was requeued.
type QueueResetResponse struct {
	Reset bool `json:"reset"`
}

// QueueClearRequest removes all jobs.
type QueueClearRequest struct{}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearCompletedRequest removes completed jobs.
type QueueClearCompletedRequest struct{}

// QueueClearCompletedResponse reports number of removed entries.
type QueueClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearFailedRequest removes failed jobs.
type QueueClearFailedRequest struct{}

// QueueClearFailedResponse reports number of removed entries.
type QueueClearFailedResponse struct {
	Removed int64 `json:"removed"`
}

// CleanupRequest removes a source file's transcoded artifacts.
type CleanupRequest struct {
	Path string `json:"path"`
}

// CleanupResponse names the output directory that was removed.
type CleanupResponse struct {
	OutputDir string `json:"output_dir"`
}

// BufferStatusRequest fetches one streaming session's buffering state.
type BufferStatusRequest struct {
	SessionKey string `json:"session_key"`
}

// BufferStatusResponse returns the session report.
type BufferStatusResponse struct {
	Found  bool                `json:"found"`
	Report buffer.StatusReport `json:"report"`
}

// BufferSessionsRequest lists active streaming sessions.
type BufferSessionsRequest struct{}

// BufferSessionsResponse returns active session keys.
type BufferSessionsResponse struct {
	Keys []string `json:"keys"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Canceled  int `json:"canceled"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	TableExists      bool   `json:"table_exists"`
	IntegrityCheck   bool   `json:"integrity_check"`
	TotalJobs        int    `json:"total_jobs"`
	Error            string `json:"error"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
