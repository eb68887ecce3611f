package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrCacheMiss is returned when a key is not found in cache
	ErrCacheMiss = errors.New("cache miss")
	// ErrCacheExpired is returned when a cached value has expired
	ErrCacheExpired = errors.New("cache expired")
)

// DB is satisfied by *pgxpool.Pool and pgxmock.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PGCache is a TTL key/value cache stored in the cache_entries table.
// Kiosk sessions live here so a restarted process can still complete them.
type PGCache struct {
	db  DB
	now func() time.Time
}

func NewPGCache(db DB) *PGCache {
	return &PGCache{db: db, now: time.Now}
}

// Get retrieves a value from cache by key
func (c *PGCache) Get(ctx context.Context, key string) ([]byte, error) {
	query := `
		SELECT value, expires_at
		FROM cache_entries
		WHERE key = $1
	`

	var value []byte
	var expiresAt time.Time

	err := c.db.QueryRow(ctx, query, key).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	if c.now().After(expiresAt) {
		_ = c.Delete(ctx, key)
		return nil, ErrCacheExpired
	}

	return value, nil
}

// Set stores a value in cache with TTL
func (c *PGCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	query := `
		INSERT INTO cache_entries (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    expires_at = EXCLUDED.expires_at,
		    created_at = NOW()
	`

	expiresAt := c.now().Add(ttl)
	_, err := c.db.Exec(ctx, query, key, value, expiresAt)
	return err
}

// Delete removes a key from cache
func (c *PGCache) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM cache_entries WHERE key = $1`
	_, err := c.db.Exec(ctx, query, key)
	return err
}

// CleanupExpired removes all expired entries
func (c *PGCache) CleanupExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM cache_entries WHERE expires_at < NOW()`
	result, err := c.db.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// Exists checks if a key exists and is not expired
func (c *PGCache) Exists(ctx context.Context, key string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM cache_entries
			WHERE key = $1 AND expires_at > NOW()
		)
	`

	var exists bool
	err := c.db.QueryRow(ctx, query, key).Scan(&exists)
	return exists, err
}

// Janitor calls CleanupExpired every interval until ctx is done.
func (c *PGCache) Janitor(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.CleanupExpired(ctx)
			if err != nil {
				logger.Warn("cache cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("expired cache entries removed", "count", n)
			}
		}
	}
}
