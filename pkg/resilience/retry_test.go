package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), 3, time.Millisecond, 5*time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	attempts := 0
	sentinel := errors.New("always fails")
	err := RetryWithBackoff(context.Background(), 2, time.Millisecond, 5*time.Millisecond, func() error {
		attempts++
		return sentinel
	})

	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("Expected ErrMaxRetriesExceeded, got %v", err)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("Expected wrapped last error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts (1 + 2 retries), got %d", attempts)
	}
}

func TestRetryWithBackoff_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := RetryWithBackoff(ctx, 5, 10*time.Millisecond, 50*time.Millisecond, func() error {
		attempts++
		return errors.New("fail")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt before cancellation check, got %d", attempts)
	}
}

func TestRetry_NonRetryableError(t *testing.T) {
	fatal := errors.New("fatal")
	attempts := 0

	err := Retry(context.Background(), RetryPolicy{
		MaxRetries:        5,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Retryable:         func(err error) bool { return !errors.Is(err, fatal) },
	}, func() error {
		attempts++
		return fatal
	})

	if !errors.Is(err, fatal) {
		t.Errorf("Expected fatal error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected no retries for non-retryable error, got %d attempts", attempts)
	}
}
