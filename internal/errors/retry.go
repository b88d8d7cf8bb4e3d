package errors

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy controls exponential backoff for idempotent reads against
// external services.
type RetryPolicy struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
}

// DefaultRetryPolicy matches the error_handling.retry_settings defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		BaseDelay:       time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2.0,
	}
}

// Delay returns the backoff delay before the given attempt (0-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.ExponentialBase, float64(attempt)))
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Retry runs fn with exponential backoff. Only retryable errors are retried;
// timeouts, validation failures and context cancellation abort immediately.
func Retry(ctx context.Context, policy RetryPolicy, op string, fn func() error) error {
	var last error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.Delay(attempt - 1)
			log.Debug().
				Str("op", op).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying after backoff")
			select {
			case <-ctx.Done():
				return Timeoutf(op, "cancelled while waiting to retry: %v", ctx.Err())
			case <-time.After(delay):
			}
		}
		last = fn()
		if last == nil {
			return nil
		}
		if !IsRetryable(last) {
			return last
		}
	}
	return last
}
