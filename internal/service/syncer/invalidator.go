package syncer

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
)

// Invalidator удаляет записи кэша, чтобы следующая загрузка пошла в сеть.
type Invalidator struct {
	store  domain.CacheStore
	logger *log.Entry
}

// NewInvalidator создаёт Invalidator поверх хранилища кэша.
func NewInvalidator(store domain.CacheStore, logger *log.Entry) *Invalidator {
	if logger == nil {
		logger = log.WithField("component", "cache-invalidator")
	}
	return &Invalidator{store: store, logger: logger}
}

// Invalidate удаляет перечисленные ключи. Отсутствующие ключи пропускаются.
func (i *Invalidator) Invalidate(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := i.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("invalidate %s: %w", key, err)
		}
		i.logger.WithField("key", key).Debug("cache entry invalidated")
	}
	return nil
}

// InvalidatePrefix удаляет все ключи с префиксом и возвращает их количество.
func (i *Invalidator) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := i.store.Keys(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list keys %q: %w", prefix, err)
	}
	if err := i.Invalidate(ctx, keys...); err != nil {
		return 0, err
	}
	return len(keys), nil
}
