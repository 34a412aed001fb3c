package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func testPolicy(maxAttempts int, retryable func(error) bool) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
		Retryable:   retryable,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := testPolicy(5, func(error) bool { return true }).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsBoundedAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("still failing")
	err := testPolicy(4, func(error) bool { return true }).Do(context.Background(), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	fatal := errors.New("invalid argument")
	err := testPolicy(5, func(err error) bool { return !errors.Is(err, fatal) }).Do(context.Background(), func() error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("err = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on non-retryable)", calls)
	}
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryPolicy{
		MaxAttempts: 10,
		BaseDelay:   time.Hour, // would stall forever without cancellation
		MaxDelay:    time.Hour,
		Retryable:   func(error) bool { return true },
	}.Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDelayIsCapped(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	for attempt, want := range map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 300 * time.Millisecond,
		9: 300 * time.Millisecond,
	} {
		if got := p.delay(attempt); got != want {
			t.Errorf("delay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("daily request count exceeded"), true},
		{errors.New("project ID capacity reached"), true},
		{fmt.Errorf("call failed: %w", errors.New("rate limit reached")), true},
		{errors.New("execution reverted"), false},
		{errors.New("insufficient funds for gas"), false},
	}
	for _, tt := range tests {
		if got := IsRateLimited(tt.err); got != tt.expected {
			t.Errorf("IsRateLimited(%v) = %v, want %v", tt.err, got, tt.expected)
		}
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("502 Bad Gateway"), true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("nonce too low"), false},
		{errors.New("execution reverted"), false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.expected {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.expected)
		}
	}
}
