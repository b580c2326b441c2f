package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
)

type cacheStore struct {
	store *Store
}

// NewCacheStore создаёт PostgreSQL-реализацию CacheStore (серверный кэш документов).
func NewCacheStore(store *Store) domain.CacheStore {
	return &cacheStore{store: store}
}

func (c *cacheStore) Get(ctx context.Context, key string) (domain.CacheEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var entry domain.CacheEntry
	err := c.store.DB().QueryRowContext(ctx, `
		SELECT key, value, updated_at FROM cache_entries WHERE key = $1
	`, key).Scan(&entry.Key, &entry.Value, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CacheEntry{}, domain.ErrCacheMiss
		}
		return domain.CacheEntry{}, fmt.Errorf("%w: select cache entry: %w", domain.ErrPersistence, err)
	}
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	return entry, nil
}

func (c *cacheStore) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if value == nil {
		value = []byte{}
	}
	if _, err := c.store.DB().ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: upsert cache entry: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (c *cacheStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := c.store.DB().ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("%w: delete cache entry: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (c *cacheStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := c.store.DB().QueryContext(ctx, `
		SELECT key FROM cache_entries WHERE key LIKE $1 ESCAPE '\' ORDER BY key
	`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("%w: list cache keys: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("%w: scan cache key: %w", domain.ErrPersistence, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate cache keys: %w", domain.ErrPersistence, err)
	}
	return keys, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var _ domain.CacheStore = (*cacheStore)(nil)
