package chain

import (
	"context"
	"strings"
	"time"
)

// RetryPolicy is an explicit, first-class retry schedule: bounded
// attempts, exponential backoff, and a predicate deciding which errors
// are worth retrying. Testable without network access.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Retryable:   IsTransient,
	}
}

// Do runs op until it succeeds, exhausts MaxAttempts, the error is
// classified non-retryable, or ctx is cancelled. Returns the last error.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay(attempt)):
			}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// delay is BaseDelay doubled per prior attempt, capped at MaxDelay.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// rate-limit signatures seen across public RPC providers
var rateLimitMarkers = []string{
	"429",
	"rate limit",
	"rate-limit",
	"too many requests",
	"exceeded",
	"capacity",
	"throttle",
}

// IsRateLimited reports whether err looks like a provider rate limit.
// Providers disagree on wording, so this is a substring match over the
// signatures we have actually seen.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var transientMarkers = []string{
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"eof",
	"temporarily unavailable",
	"502",
	"503",
}

// IsTransient reports whether err is worth retrying: rate limits and
// transport-level failures. Validation and consensus errors are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimited(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
