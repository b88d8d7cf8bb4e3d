package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const janitorInterval = time.Hour

// Store is the persistent cache tier: one SQLite file keyed by
// (indicator, source_label).
type Store struct {
	db   *sql.DB
	path string
	ttl  time.Duration

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewStore opens (creating if needed) the cache database, purges expired
// rows, and starts the hourly janitor.
func NewStore(path string, ttl time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:     db,
		path:   path,
		ttl:    ttl,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}
	if n, err := s.purgeExpired(); err != nil {
		log.Warn().Err(err).Msg("Startup cache purge failed")
	} else if n > 0 {
		log.Debug().Int64("purged", n).Msg("Purged expired cache rows at startup")
	}
	go s.janitor()

	log.Info().Str("path", path).Dur("ttl", ttl).Msg("Persistent cache opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS intel_cache (
			indicator TEXT NOT NULL,
			source_label TEXT NOT NULL,
			result_blob TEXT NOT NULL,
			retrieved_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			PRIMARY KEY (indicator, source_label)
		);
		CREATE INDEX IF NOT EXISTS idx_intel_cache_expires ON intel_cache(expires_at);
		CREATE INDEX IF NOT EXISTS idx_intel_cache_indicator ON intel_cache(indicator);
		CREATE INDEX IF NOT EXISTS idx_intel_cache_source ON intel_cache(source_label);
		CREATE INDEX IF NOT EXISTS idx_intel_cache_retrieved ON intel_cache(retrieved_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get fetches the row for the exact (indicator, source_label). Missing or
// expired rows read as absent; expired rows are deleted on sight.
func (s *Store) Get(indicator, source string) (json.RawMessage, bool, error) {
	var (
		blob      string
		expiresAt int64
	)
	err := s.db.QueryRow(
		`SELECT result_blob, expires_at FROM intel_cache WHERE indicator = ? AND source_label = ?`,
		indicator, source,
	).Scan(&blob, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if time.Now().Unix() >= expiresAt {
		_, _ = s.db.Exec(`DELETE FROM intel_cache WHERE indicator = ? AND source_label = ?`, indicator, source)
		return nil, false, nil
	}
	return json.RawMessage(blob), true, nil
}

// Put upserts a row; ttl zero means the store default.
func (s *Store) Put(indicator, source string, blob json.RawMessage, retrievedAt time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	expiresAt := retrievedAt.Add(ttl)
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO intel_cache (indicator, source_label, result_blob, retrieved_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(indicator, source_label) DO UPDATE SET
			result_blob = excluded.result_blob,
			retrieved_at = excluded.retrieved_at,
			expires_at = excluded.expires_at`,
		indicator, source, string(blob), retrievedAt.Unix(), expiresAt.Unix())
	if err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Stats returns valid/expired row counts and the database file size.
func (s *Store) Stats() (valid, expired, bytes int64, err error) {
	now := time.Now().Unix()
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM intel_cache WHERE expires_at > ?`, now).Scan(&valid); err != nil {
		return
	}
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM intel_cache WHERE expires_at <= ?`, now).Scan(&expired); err != nil {
		return
	}
	if info, statErr := os.Stat(s.path); statErr == nil {
		bytes = info.Size()
	}
	return
}

func (s *Store) purgeExpired() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM intel_cache WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) janitor() {
	defer close(s.doneCh)
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if n, err := s.purgeExpired(); err != nil {
				log.Warn().Err(err).Msg("Cache janitor purge failed")
			} else if n > 0 {
				log.Debug().Int64("purged", n).Msg("Cache janitor purged expired rows")
			}
		}
	}
}

// Ping verifies the database answers queries.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops the janitor and closes the database.
func (s *Store) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
	return s.db.Close()
}
