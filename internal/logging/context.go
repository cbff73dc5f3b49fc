package logging

import (
	"context"
	"log/slog"

	"vidingest/internal/services"
)

// Structured field keys shared by every component.
const (
	FieldComponent     = "component"
	FieldItemID        = "item_id"
	FieldVideoID       = "video_id"
	FieldStage         = "stage"
	FieldCorrelationID = "correlation_id"
	// FieldEventType names the kind of event a warning or error describes.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact states the user-facing consequence of a warning.
	FieldImpact    = "impact"
	FieldErrorKind = "error_kind"
	// FieldAlert marks records an operator should notice when scanning logs.
	FieldAlert = "alert"
)

// ContextFields returns the identifiers carried by ctx as log attributes,
// in item, video, stage, correlation order.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	if id, ok := services.ItemIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldItemID, id))
	}
	for _, f := range []struct {
		key    string
		lookup func(context.Context) (string, bool)
	}{
		{FieldVideoID, services.VideoIDFromContext},
		{FieldStage, services.StageFromContext},
		{FieldCorrelationID, services.RequestIDFromContext},
	} {
		if v, ok := f.lookup(ctx); ok {
			fields = append(fields, slog.String(f.key, v))
		}
	}
	return fields
}

// WithContext binds the identifiers carried by ctx to logger. A nil logger
// becomes a no-op logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	if fields := ContextFields(ctx); len(fields) > 0 {
		return logger.With(Args(fields...)...)
	}
	return logger
}
