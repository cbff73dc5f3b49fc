package services

import "context"

// ctxKey is a typed context key; each value type gets its own key space.
type ctxKey[T any] struct{ name string }

var (
	itemIDKey    = ctxKey[int64]{"item_id"}
	videoIDKey   = ctxKey[string]{"video_id"}
	stageKey     = ctxKey[string]{"stage"}
	requestIDKey = ctxKey[string]{"request_id"}
)

func (k ctxKey[T]) with(ctx context.Context, v T) context.Context {
	return context.WithValue(ctx, k, v)
}

func (k ctxKey[T]) from(ctx context.Context) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

func withText(ctx context.Context, key ctxKey[string], v string) context.Context {
	if v == "" {
		return ctx
	}
	return key.with(ctx, v)
}

func textFrom(ctx context.Context, key ctxKey[string]) (string, bool) {
	v, ok := key.from(ctx)
	return v, ok && v != ""
}

// WithItemID annotates ctx with the queue item being processed.
func WithItemID(ctx context.Context, id int64) context.Context {
	return itemIDKey.with(ctx, id)
}

// ItemIDFromContext returns the queue item id, if any.
func ItemIDFromContext(ctx context.Context) (int64, bool) {
	return itemIDKey.from(ctx)
}

// WithVideoID annotates ctx with the external video id. Blank ids are ignored.
func WithVideoID(ctx context.Context, id string) context.Context {
	return withText(ctx, videoIDKey, id)
}

func VideoIDFromContext(ctx context.Context) (string, bool) {
	return textFrom(ctx, videoIDKey)
}

// WithStage annotates ctx with the pipeline stage. Blank stages are ignored.
func WithStage(ctx context.Context, stage string) context.Context {
	return withText(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) {
	return textFrom(ctx, stageKey)
}

// WithRequestID annotates ctx with the correlation id of the current run.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withText(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	return textFrom(ctx, requestIDKey)
}
