package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/homeward/backoffice-go/internal/infra/resilience"
)

func TestRetryWithBackoff_RetriesOnFailure(t *testing.T) {
	cfg := resilience.Config{
		MaxRetries:     3,
		InitialBackoff: 5 * time.Millisecond,
	}

	callCount := 0
	err := resilience.RetryWithBackoff(context.Background(), cfg, func() error {
		callCount++
		if callCount < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	cfg := resilience.Config{
		MaxRetries:     2,
		InitialBackoff: 5 * time.Millisecond,
	}

	callCount := 0
	err := resilience.RetryWithBackoff(context.Background(), cfg, func() error {
		callCount++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_StopsOnPermanent(t *testing.T) {
	cfg := resilience.Config{
		MaxRetries:     5,
		InitialBackoff: 5 * time.Millisecond,
	}
	invalid := errors.New("invalid field")

	callCount := 0
	err := resilience.RetryWithBackoff(context.Background(), cfg, func() error {
		callCount++
		return resilience.Permanent(invalid)
	})

	if !errors.Is(err, invalid) {
		t.Fatalf("expected unwrapped permanent error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_RespectsContext(t *testing.T) {
	cfg := resilience.Config{
		MaxRetries:     5,
		InitialBackoff: time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := resilience.RetryWithBackoff(ctx, cfg, func() error {
		return errors.New("error")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestBackoff_IsCapped(t *testing.T) {
	for attempt := 0; attempt < 20; attempt++ {
		d := resilience.Backoff(attempt, time.Second, time.Minute)
		if d > time.Minute {
			t.Fatalf("attempt %d: backoff %v exceeds cap", attempt, d)
		}
		if d < time.Second {
			t.Fatalf("attempt %d: backoff %v below base", attempt, d)
		}
	}
}

func TestBackoff_Grows(t *testing.T) {
	if d := resilience.Backoff(3, time.Second, 0); d < 8*time.Second {
		t.Errorf("expected at least 8s, got %v", d)
	}
}

func TestBulkhead_AcquireRelease(t *testing.T) {
	bh := resilience.NewBulkhead(2)

	if err := bh.Acquire(context.Background()); err != nil {
		t.Fatalf("expected acquire, got %v", err)
	}
	if err := bh.Acquire(context.Background()); err != nil {
		t.Fatalf("expected acquire, got %v", err)
	}
	if bh.Free() != 0 {
		t.Errorf("expected no free slots, got %d", bh.Free())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := bh.Acquire(ctx); err == nil {
		t.Fatal("expected timeout on third acquire")
	}

	bh.Release()

	if err := bh.Acquire(context.Background()); err != nil {
		t.Fatalf("expected acquire after release, got %v", err)
	}
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	notCounted := errors.New("validation")
	cb := resilience.NewCircuitBreaker("test", nil, func(err error) bool { return !errors.Is(err, notCounted) })

	for i := 0; i < 10; i++ {
		_, _ = cb.Execute(func() (any, error) { return nil, notCounted })
	}

	_, err := cb.Execute(func() (any, error) { return "ok", nil })
	if resilience.IsOpen(err) {
		t.Fatal("breaker should stay closed for non-failures")
	}
}

func TestCircuitBreaker_OpensOnFailures(t *testing.T) {
	cb := resilience.NewCircuitBreaker("test", nil, nil)
	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(func() (any, error) { return nil, errors.New("503") })
	}

	_, err := cb.Execute(func() (any, error) { return "ok", nil })
	if !resilience.IsOpen(err) {
		t.Fatalf("expected open breaker, got %v", err)
	}
}
