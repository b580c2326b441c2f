// Package memory — in-memory документное хранилище с управляемыми отказами.
// Используется в тестах и при локальном запуске без бэкенда.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
)

// Store хранит документы по коллекциям.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte

	failMu   sync.Mutex
	failNext []error
	failAll  error

	fetches atomic.Int64
	lists   atomic.Int64
	writes  atomic.Int64
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{collections: make(map[string]map[string][]byte)}
}

// FailNext ставит ошибку в очередь: следующий вызов любого метода вернёт её.
func (s *Store) FailNext(err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failNext = append(s.failNext, err)
}

// SetUnavailable включает (err != nil) или выключает постоянный отказ.
func (s *Store) SetUnavailable(err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failAll = err
}

// Fetch возвращает копию документа.
func (s *Store) Fetch(ctx context.Context, collection, id string) ([]byte, error) {
	s.fetches.Add(1)
	if err := s.injected(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, domain.ErrRemoteNotFound
	}
	return append([]byte(nil), doc...), nil
}

// List возвращает документы коллекции, упорядоченные по id.
func (s *Store) List(ctx context.Context, collection string) ([][]byte, error) {
	s.lists.Add(1)
	if err := s.injected(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collections[collection]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([][]byte, 0, len(ids))
	for _, id := range ids {
		result = append(result, append([]byte(nil), docs[id]...))
	}
	return result, nil
}

// Write создаёт или перезаписывает документ.
func (s *Store) Write(ctx context.Context, collection, id string, doc []byte) error {
	s.writes.Add(1)
	if err := s.injected(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string][]byte)
		s.collections[collection] = docs
	}
	docs[id] = append([]byte(nil), doc...)
	return nil
}

// Calls возвращает количество вызовов Fetch, List и Write.
func (s *Store) Calls() (fetches, lists, writes int64) {
	return s.fetches.Load(), s.lists.Load(), s.writes.Load()
}

func (s *Store) injected(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.failMu.Lock()
	defer s.failMu.Unlock()

	if len(s.failNext) > 0 {
		err := s.failNext[0]
		s.failNext = s.failNext[1:]
		return err
	}
	return s.failAll
}

var _ domain.RemoteStore = (*Store)(nil)
