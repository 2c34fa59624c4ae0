package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	var slept []time.Duration
	out, err := Retry(context.Background(), RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		Sleep:       func(d time.Duration) { slept = append(slept, d) },
	}, func(context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "done", nil
	})
	if err != nil || out != "done" {
		t.Fatalf("expected done, got %q err=%v", out, err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != 10*time.Millisecond {
		t.Fatalf("unexpected backoff %v", slept)
	}
}

func TestRetryDoesNotRetryDeadline(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryConfig{MaxAttempts: 5, Sleep: func(time.Duration) {}},
		func(context.Context) (int, error) {
			calls++
			return 0, fmt.Errorf("upstream: %w", context.DeadlineExceeded)
		})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected single attempt, got %d", calls)
	}
}

func TestRetryDefaultsToSingleAttempt(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryConfig{}, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected one failed attempt, calls=%d err=%v", calls, err)
	}
}

func TestRetrySkipsOpenCircuit(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, Sleep: func(time.Duration) {}},
		func(context.Context) (int, error) {
			calls++
			return 0, CircuitOpenError{Provider: "openai"}
		})
	if !IsCircuitOpen(err) || calls != 1 {
		t.Fatalf("expected no retry on open circuit, calls=%d err=%v", calls, err)
	}
}

func TestCircuitBreakerCooldown(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	cb.OnError(errors.New("not a rate limit"))
	cb.OnError(RateLimitError{})
	if !cb.Allow() {
		t.Fatalf("expected breaker closed below threshold")
	}
	cb.OnError(RateLimitError{})
	if cb.Allow() {
		t.Fatalf("expected breaker open at threshold")
	}
	now = now.Add(61 * time.Second)
	if !cb.Allow() {
		t.Fatalf("expected breaker to allow after cooldown")
	}
	cb.OnSuccess()
	if !cb.Allow() {
		t.Fatalf("expected breaker closed after success")
	}
}

func TestRetryPolicyDo(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond}
	calls := 0
	err := p.Do(func() error {
		calls++
		return errors.New("nope")
	})
	if err == nil || calls != 3 {
		t.Fatalf("expected 3 attempts, got %d err=%v", calls, err)
	}
}
