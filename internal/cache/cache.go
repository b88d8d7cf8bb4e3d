// Package cache implements the two-tier result cache: a bounded in-memory
// map in front of a single-file SQLite store. Reads consult memory first;
// writes go to both tiers.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dshield-mcp/dshield-mcp/internal/telemetry"
)

// Entry is one cached result blob.
type entry struct {
	blob      json.RawMessage
	storedAt  time.Time
	expiresAt time.Time
}

// Cache is the two-tier cache. The persistent tier is optional.
type Cache struct {
	mu      sync.Mutex
	mem     map[string]entry
	maxSize int
	memTTL  time.Duration

	store *Store // nil when the persistent tier is disabled
}

// Options configures a Cache.
type Options struct {
	MaxSize       int
	MemoryTTL     time.Duration
	PersistentTTL time.Duration
	DBPath        string // empty disables the persistent tier
}

// New builds the cache and opens the persistent tier when a path is given.
func New(opts Options) (*Cache, error) {
	c := &Cache{
		mem:     make(map[string]entry),
		maxSize: opts.MaxSize,
		memTTL:  opts.MemoryTTL,
	}
	if opts.DBPath != "" {
		store, err := NewStore(opts.DBPath, opts.PersistentTTL)
		if err != nil {
			return nil, err
		}
		c.store = store
	}
	return c, nil
}

func memKey(indicator, source string) string {
	return source + "_" + indicator
}

// Get returns the cached blob for (indicator, source), consulting memory
// then the persistent tier. Expired entries are invisible.
func (c *Cache) Get(indicator, source string) (json.RawMessage, bool) {
	key := memKey(indicator, source)
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.mem[key]; ok {
		if now.Before(e.expiresAt) {
			blob := e.blob
			c.mu.Unlock()
			telemetry.CacheLookups.WithLabelValues("hit").Inc()
			return blob, true
		}
		delete(c.mem, key)
	}
	c.mu.Unlock()

	if c.store == nil {
		telemetry.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	blob, ok, err := c.store.Get(indicator, source)
	if err != nil {
		log.Warn().Err(err).Str("indicator", indicator).Str("source", source).Msg("Persistent cache read failed")
		telemetry.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	if ok {
		// Promote to the memory tier.
		c.putMemory(key, blob, now, now.Add(c.memTTL))
		telemetry.CacheLookups.WithLabelValues("hit").Inc()
	} else {
		telemetry.CacheLookups.WithLabelValues("miss").Inc()
	}
	return blob, ok
}

// Put stores its own copy of value in both tiers under the tier-default
// TTLs.
func (c *Cache) Put(indicator, source string, value any) error {
	return c.PutWithTTL(indicator, source, value, 0)
}

// PutWithTTL stores value with an entry-specific lifetime. ttl zero falls
// back to each tier's default; a positive ttl bounds the entry in both
// tiers.
func (c *Cache) PutWithTTL(indicator, source string, value any, ttl time.Duration) error {
	blob, err := json.Marshal(value)
	if err != nil {
		return err
	}
	now := time.Now()
	memTTL := c.memTTL
	if ttl > 0 {
		memTTL = ttl
	}
	c.putMemory(memKey(indicator, source), blob, now, now.Add(memTTL))

	if c.store != nil {
		if err := c.store.Put(indicator, source, blob, now, ttl); err != nil {
			log.Warn().Err(err).Str("indicator", indicator).Msg("Persistent cache write failed")
		}
	}
	return nil
}

func (c *Cache) putMemory(key string, blob json.RawMessage, now, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem[key] = entry{blob: blob, storedAt: now, expiresAt: expiresAt}
	for len(c.mem) > c.maxSize {
		// Evict the entry with the oldest insertion time.
		var (
			oldestKey string
			oldestAt  time.Time
		)
		for k, e := range c.mem {
			if oldestKey == "" || e.storedAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.storedAt
			}
		}
		delete(c.mem, oldestKey)
	}
}

// ClearMemory drops the memory tier, leaving the persistent tier intact.
func (c *Cache) ClearMemory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem = make(map[string]entry)
}

// Stats describes both tiers.
type Stats struct {
	MemoryEntries      int     `json:"memory_entries"`
	MemoryMaxSize      int     `json:"memory_max_size"`
	MemoryTTLHours     float64 `json:"memory_ttl_hours"`
	PersistentEnabled  bool    `json:"persistent_enabled"`
	PersistentValid    int64   `json:"persistent_valid_entries"`
	PersistentExpired  int64   `json:"persistent_expired_entries"`
	PersistentTTLHours float64 `json:"persistent_ttl_hours"`
	PersistentBytes    int64   `json:"persistent_db_bytes"`
}

// Stats reports cache sizes and TTLs.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	memEntries := len(c.mem)
	c.mu.Unlock()

	s := Stats{
		MemoryEntries:  memEntries,
		MemoryMaxSize:  c.maxSize,
		MemoryTTLHours: c.memTTL.Hours(),
	}
	if c.store != nil {
		s.PersistentEnabled = true
		s.PersistentTTLHours = c.store.ttl.Hours()
		valid, expired, bytes, err := c.store.Stats()
		if err != nil {
			log.Warn().Err(err).Msg("Persistent cache stats failed")
		} else {
			s.PersistentValid = valid
			s.PersistentExpired = expired
			s.PersistentBytes = bytes
		}
	}
	return s
}

// Ping verifies the persistent tier answers queries. A cache without a
// persistent tier is always healthy.
func (c *Cache) Ping(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.Ping(ctx)
}

// Close stops the janitor and closes the persistent tier.
func (c *Cache) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}
