package cache

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshield-mcp/dshield-mcp/internal/telemetry"
)

func memoryCache(t *testing.T, maxSize int, ttl time.Duration) *Cache {
	t.Helper()
	c, err := New(Options{MaxSize: maxSize, MemoryTTL: ttl})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCacheHitAndMiss(t *testing.T) {
	c := memoryCache(t, 10, time.Hour)

	_, ok := c.Get("203.0.113.7", "comprehensive_ip")
	assert.False(t, ok)

	require.NoError(t, c.Put("203.0.113.7", "comprehensive_ip", map[string]any{"score": 42}))
	blob, ok := c.Get("203.0.113.7", "comprehensive_ip")
	require.True(t, ok)

	var got map[string]float64
	require.NoError(t, json.Unmarshal(blob, &got))
	assert.Equal(t, 42.0, got["score"])

	// Same indicator under a different source label is a distinct entry.
	_, ok = c.Get("203.0.113.7", "comprehensive_domain")
	assert.False(t, ok)
}

func TestCacheMemoryTTLExpiry(t *testing.T) {
	c := memoryCache(t, 10, 10*time.Millisecond)
	require.NoError(t, c.Put("203.0.113.7", "comprehensive_ip", "v"))

	_, ok := c.Get("203.0.113.7", "comprehensive_ip")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("203.0.113.7", "comprehensive_ip")
	assert.False(t, ok, "expired entries are invisible")
	assert.Zero(t, c.Stats().MemoryEntries, "expired entry is dropped on read")
}

func TestCacheEvictsOldestWhenFull(t *testing.T) {
	c := memoryCache(t, 2, time.Hour)
	require.NoError(t, c.Put("a", "s", 1))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, c.Put("b", "s", 2))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, c.Put("c", "s", 3))

	_, ok := c.Get("a", "s")
	assert.False(t, ok, "oldest entry is evicted first")
	_, ok = c.Get("b", "s")
	assert.True(t, ok)
	_, ok = c.Get("c", "s")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Stats().MemoryEntries)
}

func TestCacheClearMemoryKeepsPersistentTier(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "intel_cache.db")
	c, err := New(Options{MaxSize: 10, MemoryTTL: time.Hour, PersistentTTL: time.Hour, DBPath: dbPath})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Put("203.0.113.7", "comprehensive_ip", "v"))
	c.ClearMemory()
	assert.Zero(t, c.Stats().MemoryEntries)

	// The read falls through to SQLite and promotes back into memory.
	_, ok := c.Get("203.0.113.7", "comprehensive_ip")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Stats().MemoryEntries)
}

func TestCachePutWithTTLBoundsEntryLifetime(t *testing.T) {
	c := memoryCache(t, 10, time.Hour)
	require.NoError(t, c.PutWithTTL("203.0.113.7", "comprehensive_ip", "v", 10*time.Millisecond))

	_, ok := c.Get("203.0.113.7", "comprehensive_ip")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("203.0.113.7", "comprehensive_ip")
	assert.False(t, ok, "entry TTL overrides the longer tier default")
}

func TestCacheCountsLookups(t *testing.T) {
	c := memoryCache(t, 10, time.Hour)

	hits := testutil.ToFloat64(telemetry.CacheLookups.WithLabelValues("hit"))
	misses := testutil.ToFloat64(telemetry.CacheLookups.WithLabelValues("miss"))

	_, ok := c.Get("a", "s")
	require.False(t, ok)
	require.NoError(t, c.Put("a", "s", 1))
	_, ok = c.Get("a", "s")
	require.True(t, ok)

	assert.Equal(t, hits+1, testutil.ToFloat64(telemetry.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, misses+1, testutil.ToFloat64(telemetry.CacheLookups.WithLabelValues("miss")))
}

func TestCacheStats(t *testing.T) {
	c := memoryCache(t, 5, 2*time.Hour)
	require.NoError(t, c.Put("a", "s", 1))

	s := c.Stats()
	assert.Equal(t, 1, s.MemoryEntries)
	assert.Equal(t, 5, s.MemoryMaxSize)
	assert.Equal(t, 2.0, s.MemoryTTLHours)
	assert.False(t, s.PersistentEnabled)
}
