package intel

import (
	"context"
	"sync"
	"time"

	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
)

const (
	rateWindow      = time.Minute
	maxWaitAttempts = 3
)

// sourceLimiter combines the sliding-window rate limit and the concurrency
// semaphore for one provider. Both are process-wide singletons owned by the
// orchestrator.
type sourceLimiter struct {
	mu     sync.Mutex
	window []time.Time
	rpm    int
	sem    chan struct{}

	// clock indirection for tests
	now func() time.Time
}

func newSourceLimiter(rpm, concurrency int) *sourceLimiter {
	return &sourceLimiter{
		rpm: rpm,
		sem: make(chan struct{}, concurrency),
		now: time.Now,
	}
}

// acquire takes a concurrency permit and a rate-limit slot. The returned
// release function gives the permit back and must run on every exit path.
// Waiting is cancellable; a cancelled waiter consumes no quota.
func (l *sourceLimiter) acquire(ctx context.Context, source string) (release func(), err error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, dserrors.Timeoutf("intel.acquire", "cancelled waiting for %s concurrency permit: %v", source, ctx.Err())
	}
	release = func() { <-l.sem }

	for attempt := 0; attempt < maxWaitAttempts; attempt++ {
		wait, ok := l.tryReserve()
		if ok {
			return release, nil
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			release()
			return nil, dserrors.Timeoutf("intel.acquire", "cancelled waiting out %s rate limit: %v", source, ctx.Err())
		}
	}
	release()
	return nil, dserrors.New(dserrors.KindRateLimit, "intel.acquire",
		dserrors.ErrRateLimitExceeded).WithService(source)
}

// tryReserve evicts stale timestamps, checks capacity, and appends the
// current timestamp inside one short critical section. The lock is released
// before any outbound call. On refusal it returns how long until the oldest
// timestamp leaves the window.
func (l *sourceLimiter) tryReserve() (wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-rateWindow)
	keep := l.window[:0]
	for _, ts := range l.window {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	l.window = keep

	if len(l.window) < l.rpm {
		l.window = append(l.window, now)
		return 0, true
	}
	return l.window[0].Add(rateWindow).Sub(now), false
}
