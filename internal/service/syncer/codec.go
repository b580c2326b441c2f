package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
)

// Codec переводит значения в байты кэша и обратно.
type Codec[T any] interface {
	Encode(value T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// JSONCodec хранит значения в JSON.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Encode(value T) ([]byte, error) {
	return json.Marshal(value)
}

func (JSONCodec[T]) Decode(data []byte) (T, error) {
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return value, err
	}
	return value, nil
}

// CachedDocument — одна запись кэша под фиксированным ключом.
type CachedDocument[T any] struct {
	Store domain.CacheStore
	Key   string
	Codec Codec[T]
}

// NewCachedDocument создаёт запись с JSON-кодеком.
func NewCachedDocument[T any](store domain.CacheStore, key string) CachedDocument[T] {
	return CachedDocument[T]{Store: store, Key: key, Codec: JSONCodec[T]{}}
}

// Read возвращает значение и признак его наличия. Промах кэша ошибкой не считается.
func (d CachedDocument[T]) Read(ctx context.Context) (T, bool, error) {
	var zero T
	entry, err := d.Store.Get(ctx, d.Key)
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			return zero, false, nil
		}
		return zero, false, err
	}
	value, err := d.Codec.Decode(entry.Value)
	if err != nil {
		return zero, false, fmt.Errorf("%w: decode %s: %v", domain.ErrPersistence, d.Key, err)
	}
	return value, true, nil
}

// Write перезаписывает значение целиком. Повторная запись того же значения не меняет кэш.
func (d CachedDocument[T]) Write(ctx context.Context, value T) error {
	data, err := d.Codec.Encode(value)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", domain.ErrPersistence, d.Key, err)
	}
	return d.Store.Put(ctx, d.Key, data)
}

// UpdatedAt возвращает время последней записи.
func (d CachedDocument[T]) UpdatedAt(ctx context.Context) (time.Time, bool, error) {
	entry, err := d.Store.Get(ctx, d.Key)
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return entry.UpdatedAt, true, nil
}
