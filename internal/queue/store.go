package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"reelstream/internal/config"
)

// Store manages queue persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the queue database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "queue.db"))
}

// OpenPath initializes or connects to a queue database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Enqueue inserts a job for the given source unless the path is already
// queued or running, in which case the existing job is returned with
// added=false. High-priority jobs are inserted ahead of queued
// normal-priority jobs but behind earlier high-priority ones.
func (s *Store) Enqueue(ctx context.Context, sourcePath string, priority Priority) (*Job, bool, error) {
	normalized := NormalizeSourcePath(sourcePath)
	if normalized == "" {
		return nil, false, errors.New("source path is empty")
	}
	if priority == "" {
		priority = PriorityNormal
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(
		ctx,
		`SELECT id FROM transcode_jobs WHERE source_path = ? AND status IN (?, ?) LIMIT 1`,
		normalized, StatusQueued, StatusRunning,
	)
	var existingID int64
	switch err := row.Scan(&existingID); {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit enqueue tx: %w", err)
		}
		existing, err := s.GetByID(ctx, existingID)
		return existing, false, err
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, false, fmt.Errorf("check existing job: %w", err)
	}

	var size int64
	var modified *time.Time
	if info, statErr := os.Stat(normalized); statErr == nil && !info.IsDir() {
		size = info.Size()
		mod := info.ModTime().UTC()
		modified = &mod
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO transcode_jobs (
            source_path, display_name, status, priority, position,
            file_size_bytes, source_modified_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?,
            (SELECT COALESCE(MAX(position), 0) + 1 FROM transcode_jobs WHERE status = ?),
            ?, ?, ?, ?)`,
		normalized,
		DisplayNameForPath(normalized),
		StatusQueued,
		priority,
		StatusQueued,
		size,
		nullableTime(modified),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}

	if priority == PriorityHigh {
		if err := s.promoteHighPriority(ctx, tx, id); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit enqueue tx: %w", err)
	}

	job, err := s.GetByID(ctx, id)
	return job, true, err
}

// promoteHighPriority moves a freshly inserted high-priority job ahead of
// every queued normal-priority job while preserving order among earlier
// high-priority entries.
func (s *Store) promoteHighPriority(ctx context.Context, tx *sql.Tx, id int64) error {
	order, err := queuedOrderTx(ctx, tx)
	if err != nil {
		return err
	}

	reordered := make([]int64, 0, len(order))
	inserted := false
	for _, entry := range order {
		if entry.id == id {
			continue
		}
		if !inserted && entry.priority != PriorityHigh {
			reordered = append(reordered, id)
			inserted = true
		}
		reordered = append(reordered, entry.id)
	}
	if !inserted {
		reordered = append(reordered, id)
	}
	return renumberQueuedTx(ctx, tx, reordered)
}

type queuedEntry struct {
	id       int64
	priority Priority
}

func queuedOrderTx(ctx context.Context, tx *sql.Tx) ([]queuedEntry, error) {
	rows, err := tx.QueryContext(
		ctx,
		`SELECT id, priority FROM transcode_jobs WHERE status = ? ORDER BY position, id`,
		StatusQueued,
	)
	if err != nil {
		return nil, fmt.Errorf("query queued order: %w", err)
	}
	defer rows.Close()

	var order []queuedEntry
	for rows.Next() {
		var entry queuedEntry
		if err := rows.Scan(&entry.id, &entry.priority); err != nil {
			return nil, fmt.Errorf("scan queued order: %w", err)
		}
		order = append(order, entry)
	}
	return order, rows.Err()
}

func renumberQueuedTx(ctx context.Context, tx *sql.Tx, orderedIDs []int64) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE transcode_jobs SET position = ?, updated_at = ? WHERE id = ?`,
			int64(i+1), timestamp, id,
		); err != nil {
			return fmt.Errorf("renumber job %d: %w", id, err)
		}
	}
	return nil
}

// GetByID fetches a job by identifier. Returns nil when no job matches.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM transcode_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FindActiveBySource returns the queued or running job holding a source
// path, or nil.
func (s *Store) FindActiveBySource(ctx context.Context, sourcePath string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM transcode_jobs WHERE source_path = ? AND status IN (?, ?) LIMIT 1`,
		NormalizeSourcePath(sourcePath), StatusQueued, StatusRunning,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by source: %w", err)
	}
	return job, nil
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided). Queued jobs come first in display order, then the rest by
// creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM transcode_jobs`
	orderClause := ` ORDER BY CASE status WHEN 'queued' THEN 0 WHEN 'running' THEN 1 ELSE 2 END, position, created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
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

// NextForRun returns the first queued job in display order, or nil when the
// queue is empty. Position already encodes priority-first ordering.
func (s *Store) NextForRun(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM transcode_jobs WHERE status = ? ORDER BY position, id LIMIT 1`,
		StatusQueued,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next for run: %w", err)
	}
	return job, nil
}

// Remove deletes a job by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transcode_jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

const jobColumns = "id, source_path, display_name, output_dir, status, priority, position, progress_percent, file_size_bytes, source_modified_at, created_at, updated_at, started_at, completed_at, last_progress_at, encode_speed, eta_seconds, error_message"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           int64
		sourcePath   string
		displayName  string
		outputDir    string
		statusStr    string
		priorityStr  string
		position     int64
		progress     float64
		fileSize     int64
		modifiedRaw  sql.NullString
		createdRaw   string
		updatedRaw   string
		startedRaw   sql.NullString
		completedRaw sql.NullString
		progressRaw  sql.NullString
		encodeSpeed  float64
		etaSeconds   int64
		errorMessage sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourcePath,
		&displayName,
		&outputDir,
		&statusStr,
		&priorityStr,
		&position,
		&progress,
		&fileSize,
		&modifiedRaw,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
		&progressRaw,
		&encodeSpeed,
		&etaSeconds,
		&errorMessage,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		SourcePath:      sourcePath,
		DisplayName:     displayName,
		OutputDir:       outputDir,
		Status:          Status(statusStr),
		Priority:        Priority(priorityStr),
		Position:        position,
		ProgressPercent: progress,
		FileSizeBytes:   fileSize,
		EncodeSpeed:     encodeSpeed,
		ETASeconds:      etaSeconds,
		ErrorMessage:    errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	job.SourceModifiedAt = parseNullableTime(modifiedRaw)
	job.StartedAt = parseNullableTime(startedRaw)
	job.CompletedAt = parseNullableTime(completedRaw)
	job.LastProgressAt = parseNullableTime(progressRaw)
	return job, nil
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	parsed, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
