package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
)

// CacheStore — in-memory кэш документов. Один экземпляр на процесс, передаётся по ссылке.
type CacheStore struct {
	mu      sync.RWMutex
	now     func() time.Time
	entries map[string]domain.CacheEntry
}

// NewCacheStore создаёт пустой кэш.
func NewCacheStore() *CacheStore {
	return NewCacheStoreWithClock(nil)
}

// NewCacheStoreWithClock создаёт кэш с заданными часами (для тестов TTL-политик).
func NewCacheStoreWithClock(now func() time.Time) *CacheStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &CacheStore{now: now, entries: make(map[string]domain.CacheEntry)}
}

// Get возвращает копию записи или ErrCacheMiss.
func (s *CacheStore) Get(_ context.Context, key string) (domain.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return domain.CacheEntry{}, domain.ErrCacheMiss
	}
	entry.Value = append([]byte(nil), entry.Value...)
	return entry, nil
}

// Put перезаписывает значение по ключу.
func (s *CacheStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = domain.CacheEntry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		UpdatedAt: s.now(),
	}
	return nil
}

// Delete удаляет запись, если она есть.
func (s *CacheStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Keys возвращает отсортированные ключи с префиксом.
func (s *CacheStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

var _ domain.CacheStore = (*CacheStore)(nil)
