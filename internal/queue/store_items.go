package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"vidingest/internal/services"
	"vidingest/internal/services/youtube"
)

// Enqueue inserts a pending job. Video references are normalized to their
// 11-character id; uploaded paths are made absolute.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (*Item, error) {
	const op = "enqueue"
	videoRef := strings.TrimSpace(req.ExternalVideoID)
	upload := strings.TrimSpace(req.UploadedFilePath)
	switch {
	case videoRef != "" && upload != "":
		return nil, services.InvalidArgument(op, "job", "set either a video id or an uploaded file, not both")
	case videoRef == "" && upload == "":
		return nil, services.InvalidArgument(op, "job", "a video id or an uploaded file is required")
	}

	var title string
	if videoRef != "" {
		id, err := youtube.ParseVideoID(videoRef)
		if err != nil {
			return nil, err
		}
		videoRef = id
	} else {
		abs, err := filepath.Abs(upload)
		if err != nil {
			return nil, fmt.Errorf("resolve upload path: %w", err)
		}
		upload = abs
		title = strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	}

	timestamp := s.timestamp()
	res, err := s.write(ctx,
		`INSERT INTO queue_items (
            external_video_id, uploaded_file_path, priority, user_id, title,
            status, progress_percent, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		orNull(videoRef),
		orNull(upload),
		req.Priority,
		orNull(strings.TrimSpace(req.UserID)),
		orNull(title),
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a queue item by identifier. A missing item returns nil, nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// FindActiveByVideo returns an unfinished item for the video, if any.
func (s *Store) FindActiveByVideo(ctx context.Context, videoID string) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items
         WHERE external_video_id = ? AND status IN (?, ?, ?, ?)
         ORDER BY id LIMIT 1`,
		videoID, StatusPending, StatusResolving, StatusDownloading, StatusExtracting,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active item: %w", err)
	}
	return item, nil
}

// List returns items filtered by status, newest first. No statuses lists all.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM queue_items`
	var args []any
	if len(statuses) > 0 {
		var in string
		in, args = inClause(statuses)
		query += ` WHERE status IN ` + in
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// NextPending claims the highest-priority pending item, oldest first, by
// moving it to resolving. It returns nil when nothing is pending.
func (s *Store) NextPending(ctx context.Context) (*Item, error) {
	var claimed int64
	err := onBusyRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var id int64
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM queue_items WHERE status = ? ORDER BY priority DESC, id ASC LIMIT 1`,
			StatusPending,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			claimed = 0
			return nil
		}
		if err != nil {
			return err
		}
		now := s.timestamp()
		if _, err := tx.ExecContext(ctx,
			`UPDATE queue_items
             SET status = ?, progress_stage = ?, progress_percent = 0, progress_message = NULL,
                 error_kind = NULL, error_message = NULL, last_heartbeat = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusResolving, string(StatusResolving), now, now, id, StatusPending,
		); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		claimed = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim pending item: %w", err)
	}
	if claimed == 0 {
		return nil, nil
	}
	return s.GetByID(ctx, claimed)
}

// Update persists changes to an existing queue item.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = s.now().UTC()
	_, err := s.write(ctx,
		`UPDATE queue_items
         SET title = ?, status = ?, metadata_json = ?, model_tier = ?, audio_path = ?,
             correlation_id = ?, error_kind = ?, error_message = ?, progress_stage = ?,
             progress_percent = ?, progress_message = ?, needs_review = ?, review_reason = ?,
             last_heartbeat = ?, updated_at = ?
         WHERE id = ?`,
		orNull(item.Title),
		item.Status,
		orNull(item.MetadataJSON),
		orNull(item.ModelTier),
		orNull(item.AudioPath),
		orNull(item.CorrelationID),
		orNull(item.ErrorKind),
		orNull(item.ErrorMessage),
		orNull(item.ProgressStage),
		item.ProgressPercent,
		orNull(item.ProgressMessage),
		flag(item.NeedsReview),
		orNull(item.ReviewReason),
		stampOrNull(item.LastHeartbeat),
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// UpdateProgress records in-flight progress and refreshes the heartbeat.
func (s *Store) UpdateProgress(ctx context.Context, id int64, stage string, percent float64, message string) error {
	now := s.timestamp()
	if _, err := s.write(ctx,
		`UPDATE queue_items
         SET progress_stage = ?, progress_percent = ?, progress_message = ?, last_heartbeat = ?, updated_at = ?
         WHERE id = ?`,
		orNull(stage), percent, orNull(message), now, now, id,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// Transition moves an item to status, recording the stage name.
func (s *Store) Transition(ctx context.Context, id int64, status Status) error {
	now := s.timestamp()
	if _, err := s.write(ctx,
		`UPDATE queue_items
         SET status = ?, progress_stage = ?, progress_percent = 0, progress_message = NULL,
             last_heartbeat = ?, updated_at = ?
         WHERE id = ?`,
		status, string(status), now, now, id,
	); err != nil {
		return fmt.Errorf("transition item: %w", err)
	}
	return nil
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight item.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := s.timestamp()
	if _, err := s.write(ctx,
		`UPDATE queue_items SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// HasCompleted reports whether any completed item references the video.
func (s *Store) HasCompleted(ctx context.Context, videoID string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM queue_items WHERE external_video_id = ? AND status = ?`,
		videoID, StatusCompleted,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("check completed items: %w", err)
	}
	return count > 0, nil
}
