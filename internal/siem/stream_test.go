package siem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamHit(id, ts, srcIP, dstIP string, sortVals ...any) Hit {
	src := map[string]any{"@timestamp": ts}
	if srcIP != "" {
		src["source.ip"] = srcIP
	}
	if dstIP != "" {
		src["destination.ip"] = dstIP
	}
	return Hit{ID: id, Index: "dshield-2025.08", Source: src, Sort: sortVals}
}

func TestSessionKeyCompositesPresentFields(t *testing.T) {
	key, meta := sessionKey(map[string]any{
		"source.ip":      "203.0.113.7",
		"destination.ip": "198.51.100.9",
	}, DefaultSessionFields)

	assert.Equal(t, "source.ip=203.0.113.7|destination.ip=198.51.100.9", key)
	assert.Equal(t, "203.0.113.7", meta["source_ip"])
	assert.Equal(t, "198.51.100.9", meta["dest_ip"])
}

func TestSessionKeyNoSessionBucket(t *testing.T) {
	key, meta := sessionKey(map[string]any{"message": "orphan"}, DefaultSessionFields)
	assert.Equal(t, "no_session", key)
	assert.Nil(t, meta)
}

func TestGroupSessionsOrdersNewestFirst(t *testing.T) {
	hits := []Hit{
		streamHit("a1", "2025-08-20T10:00:00Z", "10.0.0.1", "10.0.0.2"),
		streamHit("b1", "2025-08-20T12:00:00Z", "10.0.0.3", "10.0.0.4"),
		streamHit("a2", "2025-08-20T11:00:00Z", "10.0.0.1", "10.0.0.2"),
		streamHit("c1", "2025-08-20T09:00:00Z", "", ""),
	}
	groups := groupSessions(hits, DefaultSessionFields, 0)
	require.Len(t, groups, 3)

	assert.Equal(t, "source.ip=10.0.0.3|destination.ip=10.0.0.4", groups[0].key)
	assert.Equal(t, "source.ip=10.0.0.1|destination.ip=10.0.0.2", groups[1].key)
	assert.Equal(t, "no_session", groups[2].key)

	assert.Len(t, groups[1].docs, 2)
	assert.Equal(t, time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC), groups[1].oldest)
	assert.Equal(t, time.Date(2025, 8, 20, 11, 0, 0, 0, time.UTC), groups[1].latest)
}

func TestGroupSessionsSplitsOnIdleGap(t *testing.T) {
	// Same endpoints, but two hours of silence in the middle: with a
	// 30-minute gap the burst before the silence is its own session.
	hits := []Hit{
		streamHit("n2", "2025-08-20T12:10:00Z", "10.0.0.1", "10.0.0.2"),
		streamHit("n1", "2025-08-20T12:00:00Z", "10.0.0.1", "10.0.0.2"),
		streamHit("o1", "2025-08-20T09:30:00Z", "10.0.0.1", "10.0.0.2"),
	}
	groups := groupSessions(hits, DefaultSessionFields, 30*time.Minute)
	require.Len(t, groups, 2)

	assert.Equal(t, "source.ip=10.0.0.1|destination.ip=10.0.0.2", groups[0].key)
	assert.Len(t, groups[0].docs, 2)
	assert.Equal(t, "source.ip=10.0.0.1|destination.ip=10.0.0.2#2", groups[1].key)
	assert.Len(t, groups[1].docs, 1)
	assert.Equal(t, time.Date(2025, 8, 20, 9, 30, 0, 0, time.UTC), groups[1].latest)

	// A generous gap keeps everything in one session.
	groups = groupSessions(hits, DefaultSessionFields, 4*time.Hour)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].docs, 3)
}

func TestNextStreamCursorKeepsHeldBackSessions(t *testing.T) {
	sort := []any{float64(1755691200000), "a3"}

	// Fetch came back short, but two of five docs were held back for the
	// next chunk: the cursor must survive so they stay deliverable.
	cursor, err := nextStreamCursor(true, 3, 5, sort)
	require.NoError(t, err)
	assert.NotEmpty(t, cursor)

	// Short fetch with everything emitted means the stream is done.
	cursor, err = nextStreamCursor(true, 5, 5, sort)
	require.NoError(t, err)
	assert.Empty(t, cursor)

	// A full fetch always continues.
	cursor, err = nextStreamCursor(false, 5, 5, sort)
	require.NoError(t, err)
	assert.NotEmpty(t, cursor)

	// No emitted sort key means nothing to resume from.
	cursor, err = nextStreamCursor(false, 0, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, cursor)
}

func TestSummarizeDuration(t *testing.T) {
	g := sessionGroup{
		key:    "source.ip=10.0.0.1",
		docs:   []Hit{{}, {}, {}},
		oldest: time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC),
		latest: time.Date(2025, 8, 20, 10, 45, 0, 0, time.UTC),
	}
	s := summarize(g)
	assert.Equal(t, 3, s.EventCount)
	assert.Equal(t, 45.0, s.DurationMinutes)
}

func TestOldestEmittedSortPicksDeepestDocument(t *testing.T) {
	emitted := []sessionGroup{
		{docs: []Hit{
			streamHit("n", "2025-08-20T12:00:00Z", "10.0.0.1", "10.0.0.2", float64(1755691200000), "n"),
		}},
		{docs: []Hit{
			streamHit("o", "2025-08-20T08:00:00Z", "10.0.0.3", "10.0.0.4", float64(1755676800000), "o"),
			streamHit("m", "2025-08-20T10:00:00Z", "10.0.0.3", "10.0.0.4", float64(1755684000000), "m"),
		}},
	}
	sortVals := oldestEmittedSort(emitted)
	require.NotNil(t, sortVals)
	assert.Equal(t, "o", sortVals[1])
}

func TestOldestEmittedSortSkipsHitsWithoutSort(t *testing.T) {
	emitted := []sessionGroup{
		{docs: []Hit{streamHit("x", "2025-08-20T08:00:00Z", "10.0.0.1", "10.0.0.2")}},
	}
	assert.Nil(t, oldestEmittedSort(emitted))
}
