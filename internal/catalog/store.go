package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"reelstream/internal/config"
	"reelstream/internal/queue"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current catalog schema version. Bump this when the
// schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the catalog database was created by a
// different schema version.
var ErrSchemaMismatch = errors.New("catalog schema version mismatch")

// Entry is one catalog record transcoded output can be published against.
type Entry struct {
	ID        int64
	Path      string
	Title     string
	Season    *int
	Episode   *int
	Ready     bool
	UpdatedAt time.Time
}

// Store manages catalog persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the catalog database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "catalog.db"))
}

// OpenPath initializes or connects to a catalog database at an explicit
// path.
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

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete the catalog database to recreate)",
			ErrSchemaMismatch, version, schemaVersion)
	}

	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the entry for its path and returns the stored
// record.
func (s *Store) Upsert(ctx context.Context, entry Entry) (*Entry, error) {
	normalized := queue.NormalizeSourcePath(entry.Path)
	if normalized == "" {
		return nil, errors.New("entry path is empty")
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_entries (path, title, season, episode, ready, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title = excluded.title,
			season = excluded.season,
			episode = excluded.episode,
			ready = excluded.ready,
			updated_at = excluded.updated_at`,
		normalized, entry.Title, entry.Season, entry.Episode, boolToInt(entry.Ready), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert catalog entry: %w", err)
	}
	return s.GetByPath(ctx, normalized)
}

// GetByPath returns the entry stored under an exact path, or nil when
// absent.
func (s *Store) GetByPath(ctx context.Context, path string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, path, title, season, episode, ready, updated_at FROM catalog_entries WHERE path = ?`,
		queue.NormalizeSourcePath(path),
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get catalog entry: %w", err)
	}
	return entry, nil
}

// List returns all entries ordered by path.
func (s *Store) List(ctx context.Context) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, title, season, episode, ready, updated_at FROM catalog_entries ORDER BY path`,
	)
	if err != nil {
		return nil, fmt.Errorf("list catalog entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan catalog entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// SetReady flips the ready flag for an entry id.
func (s *Store) SetReady(ctx context.Context, id int64, ready bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE catalog_entries SET ready = ?, updated_at = ? WHERE id = ?`,
		boolToInt(ready), time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("set ready: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set ready rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("catalog entry %d not found", id)
	}
	return nil
}

// Remove deletes an entry by id. Unknown ids report false.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM catalog_entries WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove catalog entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove catalog entry rows: %w", err)
	}
	return affected > 0, nil
}

// Stats summarizes the catalog for status surfaces.
func (s *Store) Stats(ctx context.Context) (total, ready int, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(ready), 0) FROM catalog_entries`,
	)
	if err := row.Scan(&total, &ready); err != nil {
		return 0, 0, fmt.Errorf("catalog stats: %w", err)
	}
	return total, ready, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var season, episode sql.NullInt64
	var ready int
	var updatedAt string
	if err := row.Scan(&entry.ID, &entry.Path, &entry.Title, &season, &episode, &ready, &updatedAt); err != nil {
		return nil, err
	}
	if season.Valid {
		v := int(season.Int64)
		entry.Season = &v
	}
	if episode.Valid {
		v := int(episode.Int64)
		entry.Episode = &v
	}
	entry.Ready = ready != 0
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		entry.UpdatedAt = ts
	}
	return &entry, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
