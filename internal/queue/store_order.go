package queue

import (
	"context"
	"fmt"
)

// MoveUp swaps a queued job with its predecessor in display order. Returns
// false when the job is unknown or not queued. A job already at the front
// is left in place and reported as moved.
func (s *Store) MoveUp(ctx context.Context, id int64) (bool, error) {
	return s.moveBy(ctx, id, -1)
}

// MoveDown swaps a queued job with its successor in display order. Returns
// false when the job is unknown or not queued.
func (s *Store) MoveDown(ctx context.Context, id int64) (bool, error) {
	return s.moveBy(ctx, id, +1)
}

func (s *Store) moveBy(ctx context.Context, id int64, offset int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin move tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order, err := queuedOrderTx(ctx, tx)
	if err != nil {
		return false, err
	}
	index := indexOfQueued(order, id)
	if index < 0 {
		return false, nil
	}
	target := index + offset
	if target >= 0 && target < len(order) {
		order[index], order[target] = order[target], order[index]
		ids := make([]int64, len(order))
		for i, entry := range order {
			ids[i] = entry.id
		}
		if err := renumberQueuedTx(ctx, tx, ids); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit move tx: %w", err)
	}
	return true, nil
}

// MoveToTop places a queued job first among all queued jobs. Returns false
// when the job is unknown or not queued.
func (s *Store) MoveToTop(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin move tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order, err := queuedOrderTx(ctx, tx)
	if err != nil {
		return false, err
	}
	index := indexOfQueued(order, id)
	if index < 0 {
		return false, nil
	}

	ids := make([]int64, 0, len(order))
	ids = append(ids, id)
	for _, entry := range order {
		if entry.id != id {
			ids = append(ids, entry.id)
		}
	}
	if err := renumberQueuedTx(ctx, tx, ids); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit move tx: %w", err)
	}
	return true, nil
}

// Reorder re-sequences the named queued jobs into the given relative order.
// Jobs not named retain their relative order and follow the named set.
// Unknown or non-queued ids are skipped, not fatal to the batch. Returns
// the ids that were actually applied.
func (s *Store) Reorder(ctx context.Context, ids []int64) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reorder tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order, err := queuedOrderTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	queued := make(map[int64]struct{}, len(order))
	for _, entry := range order {
		queued[entry.id] = struct{}{}
	}

	applied := make([]int64, 0, len(ids))
	named := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := queued[id]; !ok {
			continue
		}
		if _, dup := named[id]; dup {
			continue
		}
		named[id] = struct{}{}
		applied = append(applied, id)
	}

	sequence := make([]int64, 0, len(order))
	sequence = append(sequence, applied...)
	for _, entry := range order {
		if _, ok := named[entry.id]; !ok {
			sequence = append(sequence, entry.id)
		}
	}
	if err := renumberQueuedTx(ctx, tx, sequence); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reorder tx: %w", err)
	}
	return applied, nil
}

// RemoveDuplicates collapses queued entries sharing a source path, keeping
// the highest-priority entry (ties: earliest inserted). Returns the number
// of jobs removed.
func (s *Store) RemoveDuplicates(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin dedup tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(
		ctx,
		`SELECT id, source_path, priority FROM transcode_jobs WHERE status = ? ORDER BY id`,
		StatusQueued,
	)
	if err != nil {
		return 0, fmt.Errorf("query queued jobs: %w", err)
	}

	type keeper struct {
		id       int64
		priority Priority
	}
	keepers := make(map[string]keeper)
	var doomed []int64
	for rows.Next() {
		var (
			id       int64
			path     string
			priority Priority
		)
		if err := rows.Scan(&id, &path, &priority); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan queued job: %w", err)
		}
		// Rows inserted by older versions may predate the current
		// normalization rules, so compare normalized forms.
		key := NormalizeSourcePath(path)
		current, seen := keepers[key]
		if !seen {
			keepers[key] = keeper{id: id, priority: priority}
			continue
		}
		if priority == PriorityHigh && current.priority != PriorityHigh {
			doomed = append(doomed, current.id)
			keepers[key] = keeper{id: id, priority: priority}
		} else {
			doomed = append(doomed, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, id := range doomed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transcode_jobs WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("delete duplicate %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit dedup tx: %w", err)
	}
	return int64(len(doomed)), nil
}

func indexOfQueued(order []queuedEntry, id int64) int {
	for i, entry := range order {
		if entry.id == id {
			return i
		}
	}
	return -1
}
