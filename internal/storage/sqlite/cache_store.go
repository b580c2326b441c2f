package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
)

// CacheStore — кэш документов в SQLite, переживает перезапуск процесса.
type CacheStore struct {
	store *Store
}

// NewCacheStore создаёт кэш поверх store.
func NewCacheStore(store *Store) *CacheStore {
	return &CacheStore{store: store}
}

// Get возвращает запись или ErrCacheMiss.
func (c *CacheStore) Get(ctx context.Context, key string) (domain.CacheEntry, error) {
	var (
		entry     domain.CacheEntry
		updatedAt int64
	)
	err := c.store.db.QueryRowContext(ctx,
		`SELECT key, value, updated_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&entry.Key, &entry.Value, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CacheEntry{}, domain.ErrCacheMiss
		}
		return domain.CacheEntry{}, persistErr("get cache entry", err)
	}
	entry.UpdatedAt = fromUnix(updatedAt)
	return entry, nil
}

// Put перезаписывает значение по ключу.
func (c *CacheStore) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := c.store.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, toUnix(c.store.now()),
	)
	if err != nil {
		return persistErr("put cache entry", err)
	}
	return nil
}

// Delete удаляет запись.
func (c *CacheStore) Delete(ctx context.Context, key string) error {
	if _, err := c.store.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return persistErr("delete cache entry", err)
	}
	return nil
}

// Keys возвращает ключи с префиксом по возрастанию.
func (c *CacheStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := c.store.db.QueryContext(ctx,
		`SELECT key FROM cache_entries WHERE substr(key, 1, length(?)) = ? ORDER BY key`, prefix, prefix,
	)
	if err != nil {
		return nil, persistErr("list cache keys", err)
	}
	defer func() { _ = rows.Close() }()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, persistErr("scan cache key", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate cache keys", err)
	}
	return keys, nil
}

var _ domain.CacheStore = (*CacheStore)(nil)
