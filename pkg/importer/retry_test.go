package importer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testRetryPolicy(maxRetries int) *RetryPolicy {
	cfg := testImporterConfig()
	cfg.MaxRetries = maxRetries
	return NewRetryPolicy(cfg)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	policy := testRetryPolicy(3)

	calls := 0
	err := policy.Do(context.Background(), "test op", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	policy := testRetryPolicy(2)

	calls := 0
	err := policy.Do(context.Background(), "test op", func() error {
		calls++
		return errors.New("always failing")
	})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected initial call plus 2 retries, got %d calls", calls)
	}
}

func TestRetryBypassesFatalErrors(t *testing.T) {
	policy := testRetryPolicy(5)

	calls := 0
	fatal := &FatalProviderError{Code: "auth", Err: errors.New("bad key")}
	err := policy.Do(context.Background(), "test op", func() error {
		calls++
		return fatal
	})
	if !IsFatal(err) {
		t.Fatalf("fatal error must propagate unchanged, got %v", err)
	}
	if calls != 1 {
		t.Errorf("fatal error must not be retried, got %d calls", calls)
	}
}

func TestRetryBypassesNotReady(t *testing.T) {
	policy := testRetryPolicy(5)

	calls := 0
	err := policy.Do(context.Background(), "test op", func() error {
		calls++
		return &ReportNotReadyError{Day: day("2026-08-15")}
	})
	if !IsNotReady(err) {
		t.Fatalf("not-ready must propagate unchanged, got %v", err)
	}
	if calls != 1 {
		t.Errorf("not-ready must not be retried, got %d calls", calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	policy := testRetryPolicy(10)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := policy.Do(ctx, "test op", func() error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if calls != 1 {
		t.Errorf("cancelled context must stop retries, got %d calls", calls)
	}
}

func TestRetryDelayIsBoundedWithJitter(t *testing.T) {
	cfg := testImporterConfig()
	cfg.RetryBaseDelayMS = 100
	cfg.RetryMaxDelayMS = 300
	policy := NewRetryPolicy(cfg)

	for attempt := 1; attempt <= 6; attempt++ {
		d := policy.delay(attempt)
		if d < time.Duration(float64(100*time.Millisecond)*0.84) {
			t.Errorf("attempt %d: delay %v below jitter floor", attempt, d)
		}
		if d > time.Duration(float64(300*time.Millisecond)*1.16) {
			t.Errorf("attempt %d: delay %v above jittered cap", attempt, d)
		}
	}
}
