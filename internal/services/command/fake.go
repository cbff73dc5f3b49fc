package command

import (
	"context"
	"sync"
)

// Call records one invocation seen by Recorder.
type Call struct {
	Binary string
	Args   []string
}

// Recorder is an in-memory Executor for tests. Handler decides each result;
// a nil Handler succeeds with empty output.
type Recorder struct {
	mu      sync.Mutex
	calls   []Call
	Handler func(ctx context.Context, spec Spec) (Result, error)
}

// Run records the call and delegates to Handler.
func (r *Recorder) Run(ctx context.Context, spec Spec) (Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Binary: spec.Binary, Args: append([]string(nil), spec.Args...)})
	handler := r.Handler
	r.mu.Unlock()
	if handler == nil {
		return Result{}, ctx.Err()
	}
	return handler(ctx, spec)
}

// Calls returns a copy of every recorded invocation.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}
