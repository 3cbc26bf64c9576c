package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRestartTracker_AllowsUpToBudget(t *testing.T) {
	budget := RestartBudget{MaxRestarts: 3, Window: 15 * time.Second}
	var tracker RestartTracker

	for i := range 3 {
		if !tracker.RecordRestart(budget) {
			t.Fatalf("restart %d rejected, want allowed", i+1)
		}
	}
	if tracker.RecordRestart(budget) {
		t.Error("fourth restart inside the window should be rejected")
	}
	if tracker.Count() != 3 {
		t.Errorf("count = %d, want 3", tracker.Count())
	}
}

func TestRestartTracker_WindowExpiry(t *testing.T) {
	budget := RestartBudget{MaxRestarts: 1, Window: 20 * time.Millisecond}
	var tracker RestartTracker

	if !tracker.RecordRestart(budget) {
		t.Fatal("first restart rejected")
	}
	if tracker.RecordRestart(budget) {
		t.Fatal("second restart inside window should be rejected")
	}
	time.Sleep(30 * time.Millisecond)
	if !tracker.RecordRestart(budget) {
		t.Error("restart after window expiry should be allowed")
	}
}

func TestRestartTracker_MaybeReset(t *testing.T) {
	budget := RestartBudget{
		MaxRestarts: 1,
		Window:      time.Hour,
		ResetAfter:  10 * time.Millisecond,
	}
	var tracker RestartTracker

	if !tracker.RecordRestart(budget) {
		t.Fatal("first restart rejected")
	}
	time.Sleep(20 * time.Millisecond)
	tracker.MaybeReset(budget)
	if tracker.Count() != 0 {
		t.Errorf("count after reset = %d, want 0", tracker.Count())
	}
	if !tracker.RecordRestart(budget) {
		t.Error("restart after reset should be allowed")
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	got, err := Retry(context.Background(),
		RetryStrategy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		func() (string, error) {
			attempts++
			if attempts < 3 {
				return "", errors.New("not yet")
			}
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got != "ok" || attempts != 3 {
		t.Errorf("got %q after %d attempts, want ok after 3", got, attempts)
	}
}

func TestRetry_Exhaustion(t *testing.T) {
	wantErr := errors.New("always")
	attempts := 0
	_, err := Retry(context.Background(),
		RetryStrategy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		func() (int, error) {
			attempts++
			return 0, wantErr
		})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Retry(ctx,
		RetryStrategy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond},
		func() (int, error) {
			return 0, errors.New("fail")
		})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
