package api

import (
	"time"

	"reelstream/internal/queue"
	"reelstream/internal/scanner"
	"reelstream/internal/scheduler"
)

// FromJob converts a queue record to its API representation.
func FromJob(job *queue.Job) QueueItem {
	if job == nil {
		return QueueItem{}
	}
	dto := QueueItem{
		ID:            job.ID,
		SourcePath:    job.SourcePath,
		DisplayName:   job.DisplayName,
		OutputDir:     job.OutputDir,
		Status:        string(job.Status),
		Priority:      string(job.Priority),
		Position:      int(job.Position),
		Progress:      job.ProgressPercent,
		FileSizeBytes: job.FileSizeBytes,
		EncodeSpeed:   job.EncodeSpeed,
		ETASeconds:    job.ETASeconds,
		ErrorMessage:  job.ErrorMessage,
	}
	dto.CreatedAt = formatTime(job.CreatedAt)
	dto.UpdatedAt = formatTime(job.UpdatedAt)
	dto.StartedAt = formatTimePtr(job.StartedAt)
	dto.CompletedAt = formatTimePtr(job.CompletedAt)
	dto.LastProgressAt = formatTimePtr(job.LastProgressAt)
	return dto
}

// FromJobs converts a slice of queue records into API DTOs.
func FromJobs(jobs []*queue.Job) []QueueItem {
	if len(jobs) == 0 {
		return nil
	}
	items := make([]QueueItem, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, FromJob(job))
	}
	return items
}

// FromSchedulerStats converts worker pool stats to the API shape.
func FromSchedulerStats(stats scheduler.Stats) SchedulerStats {
	dto := SchedulerStats{
		IsRunning:           stats.IsRunning,
		IsPaused:            stats.IsPaused,
		ActiveCount:         stats.ActiveCount,
		MaxConcurrent:       stats.MaxConcurrent,
		TotalPending:        stats.TotalPending,
		EstimatedRemainingS: stats.EstimatedRemainingS,
	}
	if len(stats.StatusCounts) > 0 {
		dto.StatusCounts = make(map[string]int, len(stats.StatusCounts))
		for status, count := range stats.StatusCounts {
			dto.StatusCounts[string(status)] = count
		}
	}
	for _, job := range stats.Active {
		dto.Active = append(dto.Active, ActiveJob{
			ID:          job.ID,
			SourcePath:  job.SourcePath,
			DisplayName: job.DisplayName,
			Percent:     job.Percent,
			Speed:       job.Speed,
			ETASeconds:  job.ETASeconds,
		})
	}
	return dto
}

// FromScanTask converts a tracked scan snapshot to the API shape.
func FromScanTask(task scanner.TaskSnapshot) ScanTask {
	dto := ScanTask{
		ID:        task.ID,
		Mode:      string(task.Mode),
		State:     string(task.State),
		Added:     task.Added,
		Error:     task.Error,
		StartedAt: formatTime(task.StartedAt),
	}
	dto.FinishedAt = formatTimePtr(task.FinishedAt)
	return dto
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
