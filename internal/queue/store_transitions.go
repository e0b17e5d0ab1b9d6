package queue

import (
	"context"
	"fmt"
	"time"
)

// MarkRunning transitions a queued job to running and records its output
// directory. Returns false when the job is unknown or not queued.
func (s *Store) MarkRunning(ctx context.Context, id int64, outputDir string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE transcode_jobs
         SET status = ?, output_dir = ?, started_at = ?, last_progress_at = ?,
             progress_percent = 0, encode_speed = 0, eta_seconds = 0,
             error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusRunning, outputDir, now, now, now, id, StatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("mark running: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkProgress records a progress sample for a running job. Progress is
// monotonically non-decreasing; a lower reading keeps the stored value but
// still refreshes the heartbeat used by the stale watchdog.
func (s *Store) MarkProgress(ctx context.Context, id int64, percent, speed float64, etaSeconds int64) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if etaSeconds < 0 {
		etaSeconds = 0
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE transcode_jobs
         SET progress_percent = MAX(progress_percent, ?), encode_speed = ?,
             eta_seconds = ?, last_progress_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		percent, speed, etaSeconds, now, now, id, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("mark progress: %w", err)
	}
	return nil
}

// MarkCompleted transitions a running job to completed at 100%.
func (s *Store) MarkCompleted(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE transcode_jobs
         SET status = ?, progress_percent = 100, eta_seconds = 0,
             completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted, now, now, id, StatusRunning,
	)
	if err != nil {
		return false, fmt.Errorf("mark completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkFailed transitions a job to failed with an operator-visible message.
// The job is retained for inspection and manual reset, never auto-retried.
func (s *Store) MarkFailed(ctx context.Context, id int64, message string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE transcode_jobs
         SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusFailed, nullableString(message), now, now, id, StatusQueued, StatusRunning,
	)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkCanceled transitions a job to canceled with the given reason.
func (s *Store) MarkCanceled(ctx context.Context, id int64, reason string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE transcode_jobs
         SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusCanceled, nullableString(reason), now, now, id, StatusQueued, StatusRunning,
	)
	if err != nil {
		return false, fmt.Errorf("mark canceled: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ResetJob returns a failed or canceled job to the back of the queue. This
// is the manual operator path; nothing in the daemon calls it automatically.
func (s *Store) ResetJob(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE transcode_jobs
         SET status = ?, priority = ?, progress_percent = 0, encode_speed = 0,
             eta_seconds = 0, error_message = NULL, started_at = NULL,
             completed_at = NULL, last_progress_at = NULL, updated_at = ?,
             position = (SELECT COALESCE(MAX(position), 0) + 1 FROM transcode_jobs WHERE status = ?)
         WHERE id = ? AND status IN (?, ?)`,
		StatusQueued, PriorityNormal, now, StatusQueued, id, StatusFailed, StatusCanceled,
	)
	if err != nil {
		return false, fmt.Errorf("reset job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ResetOrphanedRunning returns jobs left in running state by a previous
// daemon process to the back of the queue. Called once at startup before
// any worker slot is filled.
func (s *Store) ResetOrphanedRunning(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE transcode_jobs
         SET status = ?, progress_percent = 0, encode_speed = 0, eta_seconds = 0,
             started_at = NULL, last_progress_at = NULL, updated_at = ?,
             position = (SELECT COALESCE(MAX(position), 0) + 1 FROM transcode_jobs WHERE status = ?)
         WHERE status = ?`,
		StatusQueued, now, StatusQueued, StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset orphaned running: %w", err)
	}
	return res.RowsAffected()
}

// StaleRunning returns running jobs whose last progress sample is older than
// the cutoff. The scheduler fails these and reclaims their slots.
func (s *Store) StaleRunning(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM transcode_jobs
         WHERE status = ? AND last_progress_at IS NOT NULL AND last_progress_at < ?`,
		StatusRunning, cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query stale running: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
