package services

import (
	"context"
	"time"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper. It never holds locks and returns
// ctx.Err() when the context ends first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy describes how many times an operation runs and how long to
// wait between runs. Delays, when set, is a fixed schedule where entry i
// follows failed attempt i+1 and the last entry repeats. Otherwise the wait
// doubles from BaseDelay and is capped at MaxDelay.
type RetryPolicy struct {
	Attempts  int
	Delays    []time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Sleep     Sleeper
	// OnRetry is called before each wait with the failed attempt number.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Delay returns the wait after the given 1-based failed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if len(p.Delays) > 0 {
		idx := attempt - 1
		if idx >= len(p.Delays) {
			idx = len(p.Delays) - 1
		}
		return p.Delays[idx]
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// attempt budget runs out. Exhaustion is reported through Exhausted with the
// exact attempt count. Cancellation is returned unwrapped.
func Retry(ctx context.Context, op, externalID string, policy RetryPolicy, fn func(ctx context.Context, attempt int) error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		delay := policy.Delay(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, delay, lastErr)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return Exhausted(op, externalID, attempts, lastErr)
}
