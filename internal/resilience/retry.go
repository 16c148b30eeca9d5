// Package resilience provides the retry engine and the circuit breaker that
// guard every outbound dependency call.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrRetriesExhausted wraps the last error once every attempt has been used.
// Callers hand the operation to the dead letter queue when they see it.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy controls attempt count and backoff shape.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the configuration defaults.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   time.Second,
	MaxDelay:    60 * time.Second,
}

// Delay computes the backoff before the given retry attempt (1-based):
// BaseDelay doubled per attempt and capped at MaxDelay, plus additive jitter
// drawn uniformly from [0, BaseDelay).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay << uint(attempt-1)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(p.BaseDelay) + 1))
	return delay + jitter
}

// Retry runs op until it succeeds, fails non-retryably, exhausts the policy,
// or the context is done. The retryable predicate decides which errors are
// worth another attempt; everything else returns immediately.
func Retry[T any](ctx context.Context, policy RetryPolicy, retryable func(error) bool, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(policy.Delay(attempt - 1)):
			}
		}

		result, err = op(ctx)
		if err == nil {
			return result, nil
		}
		if !retryable(err) {
			return result, err
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
	}

	return result, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, policy.MaxAttempts, err)
}
