package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageIncludesService(t *testing.T) {
	err := External("intel.fetch", "virustotal", errors.New("boom"))
	assert.Equal(t, "intel.fetch failed for virustotal: boom", err.Error())

	err = Internal("siem.search", errors.New("boom"))
	assert.Equal(t, "siem.search failed: boom", err.Error())
}

func TestKindOfClassifiesWrappedErrors(t *testing.T) {
	base := Invalidf("op", "bad input")
	wrapped := fmt.Errorf("tool failed: %w", base)
	assert.Equal(t, KindInvalidParams, KindOf(wrapped))

	assert.Equal(t, KindTimeout, KindOf(Timeoutf("op", "too slow")))
	assert.Equal(t, KindRateLimit, KindOf(New(KindRateLimit, "op", ErrRateLimitExceeded)))
	assert.Equal(t, KindInternal, KindOf(errors.New("mystery")))
}

func TestSentinelMapping(t *testing.T) {
	assert.ErrorIs(t, Invalidf("op", "bad"), ErrInvalidParams)
	assert.ErrorIs(t, Timeoutf("op", "slow"), ErrTimeout)
	assert.ErrorIs(t, External("op", "svc", errors.New("x")), ErrExternalService)
	assert.ErrorIs(t, NotFoundf("op", "missing"), ErrNotFound)
	assert.NotErrorIs(t, Invalidf("op", "bad"), ErrTimeout)
}

func TestRetryability(t *testing.T) {
	assert.True(t, IsRetryable(External("op", "svc", errors.New("x"))))
	assert.False(t, IsRetryable(Invalidf("op", "bad")))
	assert.False(t, IsRetryable(Timeoutf("op", "slow")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestWithStatusCodeRefinesRetryability(t *testing.T) {
	// A 4xx on an otherwise retryable external error pins it non-retryable.
	err := External("op", "svc", errors.New("x")).WithStatusCode(403)
	assert.False(t, err.Retryable)

	err = Invalidf("op", "bad").WithStatusCode(503)
	assert.True(t, err.Retryable)

	err = External("op", "svc", errors.New("x")).WithStatusCode(429)
	assert.True(t, err.Retryable)
	assert.Equal(t, 429, err.StatusCode)
}

func TestDelayBackoffAndCap(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, ExponentialBase: 2}

	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 30*time.Second, p.Delay(10), "delay caps at max_delay")
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryPolicy(), "op", func() error {
		calls++
		return Invalidf("op", "bad")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRetriesUntilSuccess(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 2}
	calls := 0
	err := Retry(context.Background(), policy, "op", func() error {
		calls++
		if calls < 3 {
			return External("op", "svc", errors.New("flaky"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 2}
	calls := 0
	err := Retry(context.Background(), policy, "op", func() error {
		calls++
		return External("op", "svc", errors.New("down"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, ExponentialBase: 2}
	err := Retry(ctx, policy, "op", func() error {
		return External("op", "svc", errors.New("down"))
	})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}
