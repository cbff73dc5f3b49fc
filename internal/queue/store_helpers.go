package queue

import (
	"fmt"
	"strings"
	"time"
)

const itemColumns = `id, external_video_id, uploaded_file_path, priority, user_id, title, status,
    metadata_json, model_tier, audio_path, correlation_id, error_kind, error_message,
    progress_stage, progress_percent, progress_message, needs_review, review_reason,
    last_heartbeat, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	err := row.Scan(
		&item.ID,
		text{&item.ExternalVideoID},
		text{&item.UploadedFilePath},
		&item.Priority,
		text{&item.UserID},
		text{&item.Title},
		(*string)(&item.Status),
		text{&item.MetadataJSON},
		text{&item.ModelTier},
		text{&item.AudioPath},
		text{&item.CorrelationID},
		text{&item.ErrorKind},
		text{&item.ErrorMessage},
		text{&item.ProgressStage},
		&item.ProgressPercent,
		text{&item.ProgressMessage},
		&item.NeedsReview,
		text{&item.ReviewReason},
		optionalStamp{&item.LastHeartbeat},
		stamp{&item.CreatedAt},
		stamp{&item.UpdatedAt},
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// text scans a nullable TEXT column; NULL becomes "".
type text struct{ dst *string }

func (t text) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t.dst = ""
	case string:
		*t.dst = v
	case []byte:
		*t.dst = string(v)
	default:
		return fmt.Errorf("scan text: unexpected %T", src)
	}
	return nil
}

// stamp scans an RFC 3339 TEXT column. Unparseable values leave the zero time.
type stamp struct{ dst *time.Time }

func (s stamp) Scan(src any) error {
	var raw string
	if err := (text{&raw}).Scan(src); err != nil {
		return err
	}
	*s.dst = parseStamp(raw)
	return nil
}

type optionalStamp struct{ dst **time.Time }

func (s optionalStamp) Scan(src any) error {
	var raw string
	if err := (text{&raw}).Scan(src); err != nil {
		return err
	}
	*s.dst = nil
	if ts := parseStamp(raw); !ts.IsZero() {
		*s.dst = &ts
	}
	return nil
}

func parseStamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// orNull stores empty strings as NULL.
func orNull(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func stampOrNull(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

// inClause renders "(?, ?, ...)" for n values and returns them as query args.
func inClause[T any](values []T) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ") + ")", args
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}
