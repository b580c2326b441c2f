// Package redisstore — документное хранилище поверх Redis.
// Документ хранится строкой под ключом <prefix><collection>:<id>,
// идентификаторы коллекции хранятся в множестве <prefix><collection>.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
)

// Store реализует domain.RemoteStore.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// New создаёт хранилище. prefix отделяет данные нескольких окружений в одном Redis.
func New(rdb redis.UniversalClient, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

// DocumentKey возвращает ключ документа.
func (s *Store) DocumentKey(collection, id string) string {
	return s.prefix + collection + ":" + id
}

// CollectionKey возвращает ключ множества идентификаторов коллекции.
func (s *Store) CollectionKey(collection string) string {
	return s.prefix + collection
}

// Fetch возвращает документ или ErrRemoteNotFound.
func (s *Store) Fetch(ctx context.Context, collection, id string) ([]byte, error) {
	doc, err := s.rdb.Get(ctx, s.DocumentKey(collection, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrRemoteNotFound
		}
		return nil, classify("fetch "+collection+"/"+id, err)
	}
	return doc, nil
}

// List возвращает документы коллекции в порядке id. Висячие id без документа пропускаются.
func (s *Store) List(ctx context.Context, collection string) ([][]byte, error) {
	ids, err := s.rdb.SMembers(ctx, s.CollectionKey(collection)).Result()
	if err != nil {
		return nil, classify("list "+collection, err)
	}
	if len(ids) == 0 {
		return [][]byte{}, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.DocumentKey(collection, id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, classify("list "+collection, err)
	}

	docs := make([][]byte, 0, len(values))
	for _, value := range values {
		str, ok := value.(string)
		if !ok {
			continue
		}
		docs = append(docs, []byte(str))
	}
	return docs, nil
}

// Write атомарно записывает документ и добавляет id в коллекцию.
func (s *Store) Write(ctx context.Context, collection, id string, doc []byte) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.DocumentKey(collection, id), doc, 0)
		pipe.SAdd(ctx, s.CollectionKey(collection), id)
		return nil
	})
	if err != nil {
		return classify("write "+collection+"/"+id, err)
	}
	return nil
}

// Ping проверяет доступность Redis.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return classify("ping", err)
	}
	return nil
}

// classify сводит ошибки Redis к ошибкам domain.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	msg := err.Error()
	for _, prefix := range []string{"NOAUTH", "NOPERM", "WRONGPASS"} {
		if strings.HasPrefix(msg, prefix) {
			return fmt.Errorf("%w: %s: %v", domain.ErrPermissionDenied, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrRemoteUnavailable, op, err)
}

var _ domain.RemoteStore = (*Store)(nil)
