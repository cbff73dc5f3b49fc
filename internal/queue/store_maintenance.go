package queue

import (
	"context"
	"fmt"
	"time"
)

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int, len(allStatuses))
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("queue stats: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// Health folds per-status counts into the buckets shown by `queue status`.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	var h HealthSummary
	for status, n := range stats {
		h.Total += n
		switch {
		case status == StatusPending:
			h.Pending += n
		case status == StatusFailed:
			h.Failed += n
		case status == StatusReview:
			h.Review += n
		case status == StatusCompleted:
			h.Completed += n
		case (&Item{Status: status}).IsProcessing():
			h.Processing += n
		}
	}
	return h, nil
}

// requeue moves in-flight items matching extra back to pending with a note
// in progress_stage.
func (s *Store) requeue(ctx context.Context, note, extra string, extraArgs ...any) (int64, error) {
	in, inArgs := inClause(processingStatuses)
	args := append([]any{StatusPending, note, s.timestamp()}, inArgs...)
	res, err := s.write(ctx,
		`UPDATE queue_items
         SET status = ?, progress_stage = ?, progress_percent = 0, progress_message = NULL,
             last_heartbeat = NULL, updated_at = ?
         WHERE status IN `+in+extra,
		append(args, extraArgs...)...,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ResetStuckProcessing returns every in-flight item to pending. The daemon
// calls it on startup, when no worker can own an in-flight item.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	n, err := s.requeue(ctx, "Reset from stuck processing", "")
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return n, nil
}

// ReclaimStaleProcessing returns in-flight items whose heartbeat is older
// than cutoff to pending.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.requeue(ctx, "Reclaimed from stale processing",
		` AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("reclaim stale items: %w", err)
	}
	return n, nil
}

// FailActive marks in-flight items failed with reason. Used on shutdown.
func (s *Store) FailActive(ctx context.Context, reason string) (int64, error) {
	in, inArgs := inClause(processingStatuses)
	res, err := s.write(ctx,
		`UPDATE queue_items SET status = ?, error_message = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status IN `+in,
		append([]any{StatusFailed, reason, s.timestamp()}, inArgs...)...,
	)
	if err != nil {
		return 0, fmt.Errorf("fail active items: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed items back to pending. With no ids every failed
// item is retried. Items in review are left alone.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	query := `UPDATE queue_items
        SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
            progress_message = NULL, error_kind = NULL, error_message = NULL, updated_at = ?
        WHERE status = ?`
	args := []any{StatusPending, s.timestamp(), StatusFailed}
	if len(ids) > 0 {
		in, idArgs := inClause(ids)
		query += ` AND id IN ` + in
		args = append(args, idArgs...)
	}
	res, err := s.write(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed items: %w", err)
	}
	return res.RowsAffected()
}

// Remove deletes the given items regardless of status.
func (s *Store) Remove(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	in, args := inClause(ids)
	return s.delete(ctx, "remove items", `WHERE id IN `+in, args...)
}

// ClearCompleted deletes completed items.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	return s.delete(ctx, "clear completed items", `WHERE status = ?`, StatusCompleted)
}

// Clear deletes every item.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	return s.delete(ctx, "clear queue", "")
}

func (s *Store) delete(ctx context.Context, op, where string, args ...any) (int64, error) {
	res, err := s.write(ctx, `DELETE FROM queue_items `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return res.RowsAffected()
}
