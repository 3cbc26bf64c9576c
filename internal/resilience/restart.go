package resilience

import (
	"context"
	"log/slog"
	"time"
)

// RestartBudget bounds how often a supervised child may be restarted: at most
// MaxRestarts within any Window. After ResetAfter of quiet the history is
// cleared so an old incident does not count against a new one.
type RestartBudget struct {
	MaxRestarts int
	Window      time.Duration
	ResetAfter  time.Duration
}

// RestartTracker records restart timestamps against a [RestartBudget].
// Not safe for concurrent use; the supervisor owns one per child.
type RestartTracker struct {
	restarts []time.Time
}

// MaybeReset clears the history when the last restart is older than the
// budget's ResetAfter.
func (t *RestartTracker) MaybeReset(budget RestartBudget) {
	if budget.ResetAfter <= 0 || len(t.restarts) == 0 {
		return
	}
	if time.Since(t.restarts[len(t.restarts)-1]) >= budget.ResetAfter {
		t.restarts = t.restarts[:0]
	}
}

// RecordRestart registers one restart attempt. It returns false when the
// budget is exhausted: the attempt would be the MaxRestarts+1-th inside the
// window. The caller escalates (meltdown) on false.
func (t *RestartTracker) RecordRestart(budget RestartBudget) bool {
	now := time.Now()

	// Drop entries that fell out of the window.
	cutoff := now.Add(-budget.Window)
	kept := t.restarts[:0]
	for _, ts := range t.restarts {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	t.restarts = kept

	if len(t.restarts) >= budget.MaxRestarts {
		return false
	}
	t.restarts = append(t.restarts, now)
	return true
}

// Count reports the restarts currently inside the window.
func (t *RestartTracker) Count() int {
	return len(t.restarts)
}

// RetryStrategy bounds a spawn retry loop: MaxAttempts tries with exponential
// backoff starting at BaseDelay (BaseDelay, 2×, 4×, ...).
type RetryStrategy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Retry runs fn up to strategy.MaxAttempts times, sleeping exponentially
// between failures. Returns the first success, or the last error once the
// attempts are exhausted or ctx is cancelled.
func Retry[T any](ctx context.Context, strategy RetryStrategy, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := strategy.BaseDelay
	for attempt := 1; attempt <= strategy.MaxAttempts; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		slog.Warn("retry attempt failed",
			"attempt", attempt,
			"max_attempts", strategy.MaxAttempts,
			"err", err,
		)
		if attempt == strategy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return zero, lastErr
}
