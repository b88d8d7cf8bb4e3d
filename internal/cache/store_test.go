package cache

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "intel_cache.db"), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := testStore(t, time.Hour)

	_, ok, err := s.Get("203.0.113.7", "comprehensive_ip")
	require.NoError(t, err)
	assert.False(t, ok)

	blob := json.RawMessage(`{"score":42}`)
	require.NoError(t, s.Put("203.0.113.7", "comprehensive_ip", blob, time.Now(), 0))

	got, ok, err := s.Get("203.0.113.7", "comprehensive_ip")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"score":42}`, string(got))
}

func TestStoreUpsertReplaces(t *testing.T) {
	s := testStore(t, time.Hour)
	require.NoError(t, s.Put("a", "s", json.RawMessage(`{"v":1}`), time.Now(), 0))
	require.NoError(t, s.Put("a", "s", json.RawMessage(`{"v":2}`), time.Now(), 0))

	got, ok, err := s.Get("a", "s")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(got))

	valid, _, _, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), valid)
}

func TestStoreExpiredRowsReadAsAbsent(t *testing.T) {
	s := testStore(t, time.Second)

	// Backdate the write so expires_at already passed.
	require.NoError(t, s.Put("a", "s", json.RawMessage(`{}`), time.Now().Add(-time.Minute), 0))
	_, ok, err := s.Get("a", "s")
	require.NoError(t, err)
	assert.False(t, ok)

	// The expired row was deleted on sight.
	valid, expired, _, err := s.Stats()
	require.NoError(t, err)
	assert.Zero(t, valid)
	assert.Zero(t, expired)
}

func TestStoreStatsCountsByExpiry(t *testing.T) {
	s := testStore(t, time.Hour)
	require.NoError(t, s.Put("fresh", "s", json.RawMessage(`{}`), time.Now(), 0))
	require.NoError(t, s.Put("stale", "s", json.RawMessage(`{}`), time.Now().Add(-2*time.Hour), 0))

	valid, expired, bytes, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), valid)
	assert.Equal(t, int64(1), expired)
	assert.Positive(t, bytes)
}

func TestStorePing(t *testing.T) {
	s := testStore(t, time.Hour)
	assert.NoError(t, s.Ping(context.Background()))
}
