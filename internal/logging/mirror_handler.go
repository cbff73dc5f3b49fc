package logging

import (
	"context"
	"log/slog"
)

// mirrorHandler sends every record to a primary handler and copies it to a
// secondary one. Failures writing the mirror never surface to the caller;
// the primary's error does.
type mirrorHandler struct {
	primary slog.Handler
	mirror  slog.Handler
}

func mirrored(primary, mirror slog.Handler) slog.Handler {
	switch {
	case primary == nil && mirror == nil:
		return NoopHandler{}
	case mirror == nil:
		return primary
	case primary == nil:
		return mirror
	}
	return mirrorHandler{primary: primary, mirror: mirror}
}

func (h mirrorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.mirror.Enabled(ctx, level)
}

func (h mirrorHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.mirror.Enabled(ctx, record.Level) {
		_ = h.mirror.Handle(ctx, record.Clone())
	}
	if !h.primary.Enabled(ctx, record.Level) {
		return nil
	}
	return h.primary.Handle(ctx, record)
}

func (h mirrorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return mirrorHandler{primary: h.primary.WithAttrs(attrs), mirror: h.mirror.WithAttrs(attrs)}
}

func (h mirrorHandler) WithGroup(name string) slog.Handler {
	return mirrorHandler{primary: h.primary.WithGroup(name), mirror: h.mirror.WithGroup(name)}
}
