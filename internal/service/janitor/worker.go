// Package janitor удаляет из локального кэша записи, которые давно не обновлялись.
package janitor

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
	"github.com/vladislavdragonenkov/storefront-sync/internal/metrics"
)

const defaultInterval = time.Hour

// Options задаёт параметры очистки.
type Options struct {
	Logger    *log.Entry
	Metrics   *metrics.CacheMetrics
	Interval  time.Duration
	Retention time.Duration
	Prefixes  []string
	Clock     func() time.Time
}

// Option настраивает Worker.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics включает метрики очистки.
func WithMetrics(m *metrics.CacheMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithInterval задаёт интервал между проходами.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithRetention задаёт возраст записи, после которого она удаляется. 0 отключает очистку.
func WithRetention(retention time.Duration) Option {
	return func(opts *Options) {
		opts.Retention = retention
	}
}

// WithPrefixes ограничивает очистку ключами с этими префиксами.
func WithPrefixes(prefixes ...string) Option {
	return func(opts *Options) {
		opts.Prefixes = append([]string(nil), prefixes...)
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// Worker периодически удаляет устаревшие записи кэша.
type Worker struct {
	cache     domain.CacheStore
	logger    *log.Entry
	metrics   *metrics.CacheMetrics
	interval  time.Duration
	retention time.Duration
	prefixes  []string
	clock     func() time.Time
}

// NewWorker создаёт воркер очистки. Без префиксов просматриваются все ключи.
func NewWorker(cache domain.CacheStore, options ...Option) *Worker {
	opts := Options{Interval: defaultInterval}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cache-janitor")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if len(opts.Prefixes) == 0 {
		opts.Prefixes = []string{""}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Worker{
		cache:     cache,
		logger:    logger,
		metrics:   opts.Metrics,
		interval:  opts.Interval,
		retention: opts.Retention,
		prefixes:  opts.Prefixes,
		clock:     opts.Clock,
	}
}

// Run выполняет очистку сразу и затем раз в interval до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.cache == nil || w.retention <= 0 {
		w.logger.Debug("cache janitor is disabled")
		return
	}

	w.cleanup(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	evicted, err := w.Evict(ctx, w.clock().UTC())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if w.metrics != nil {
			w.metrics.RecordRun(metrics.JanitorRunError, evicted)
		}
		w.logger.WithError(err).Warn("cache cleanup run failed")
		return
	}

	if w.metrics != nil {
		w.metrics.RecordRun(metrics.JanitorRunOK, evicted)
	}
	if evicted > 0 {
		w.logger.WithField("evicted", evicted).Info("cache cleanup completed")
	}
}

// Evict удаляет записи, обновлённые раньше now - retention. Возвращает число удалённых.
// Запись, исчезнувшая между Keys и Get, пропускается.
func (w *Worker) Evict(ctx context.Context, now time.Time) (int, error) {
	if w.retention <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-w.retention)

	evicted := 0
	for _, prefix := range w.prefixes {
		keys, err := w.cache.Keys(ctx, prefix)
		if err != nil {
			return evicted, err
		}
		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return evicted, err
			}

			entry, err := w.cache.Get(ctx, key)
			if errors.Is(err, domain.ErrCacheMiss) {
				continue
			}
			if err != nil {
				return evicted, err
			}
			if !entry.UpdatedAt.Before(cutoff) {
				continue
			}
			if err := w.cache.Delete(ctx, key); err != nil {
				return evicted, err
			}
			evicted++
		}
	}
	return evicted, nil
}
