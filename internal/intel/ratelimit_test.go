package intel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
)

func TestTryReserveSlidingWindow(t *testing.T) {
	clock := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	l := newSourceLimiter(2, 1)
	l.now = func() time.Time { return clock }

	_, ok := l.tryReserve()
	assert.True(t, ok)
	_, ok = l.tryReserve()
	assert.True(t, ok)

	wait, ok := l.tryReserve()
	assert.False(t, ok, "third request in the window is refused")
	assert.Equal(t, time.Minute, wait)

	// 30 seconds in, the oldest slot still has 30 seconds left.
	clock = clock.Add(30 * time.Second)
	wait, ok = l.tryReserve()
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, wait)

	// Once the window slides past the oldest timestamp, capacity returns.
	clock = clock.Add(31 * time.Second)
	_, ok = l.tryReserve()
	assert.True(t, ok)
}

func TestAcquireReleasesConcurrencyPermit(t *testing.T) {
	l := newSourceLimiter(100, 1)
	release, err := l.acquire(context.Background(), "dshield")
	require.NoError(t, err)
	release()

	// The permit came back, so a second acquire does not block.
	release, err = l.acquire(context.Background(), "dshield")
	require.NoError(t, err)
	release()
}

func TestAcquireCancelledWhileWaitingForPermit(t *testing.T) {
	l := newSourceLimiter(100, 1)
	release, err := l.acquire(context.Background(), "dshield")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.acquire(ctx, "dshield")
	require.Error(t, err)
	assert.Equal(t, dserrors.KindTimeout, dserrors.KindOf(err))
}

func TestAcquireGivesUpAfterRepeatedRefusals(t *testing.T) {
	start := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	clock := start
	l := newSourceLimiter(1, 1)
	l.now = func() time.Time { return clock }

	release, err := l.acquire(context.Background(), "shodan")
	require.NoError(t, err)
	release()

	// Park the frozen clock a millisecond short of the window edge: every
	// retry waits briefly, re-checks, and is refused again.
	clock = start.Add(rateWindow - time.Millisecond)
	_, err = l.acquire(context.Background(), "shodan")
	require.Error(t, err)
	assert.Equal(t, dserrors.KindRateLimit, dserrors.KindOf(err))
}
