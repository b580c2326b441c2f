// Package outbox доставляет события заказов из transactional outbox в брокер.
package outbox

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
	"github.com/vladislavdragonenkov/storefront-sync/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

// DeadLetterSink принимает события, которые не удалось доставить за все попытки.
type DeadLetterSink interface {
	PublishDeadLetter(event domain.OutboxMessage, cause error) error
}

// Worker периодически забирает pending-сообщения и публикует их с повторами.
// Недоставленное сообщение помечается failed и уходит в DeadLetterSink, если он задан.
type Worker struct {
	repo        domain.OutboxRepository
	publisher   domain.OutboxPublisher
	deadLetters DeadLetterSink
	logger      *log.Entry
	metrics     *metrics.OutboxMetrics

	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	retryDelay   time.Duration
}

// Option настраивает Worker.
type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithMetrics задаёт метрики. По умолчанию регистрируются в глобальном регистре.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithDeadLetters включает DLQ для недоставленных событий.
func WithDeadLetters(sink DeadLetterSink) Option {
	return func(w *Worker) { w.deadLetters = sink }
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации одного сообщения за цикл.
func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается. 0 отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) {
		if delay >= 0 {
			w.retryDelay = delay
		}
	}
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	w := &Worker{
		repo:         repo,
		publisher:    publisher,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		retryDelay:   defaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = log.WithField("component", "outbox-worker")
	}
	if w.metrics == nil {
		w.metrics = metrics.NewOutboxMetrics()
	}
	return w
}

// Run обрабатывает outbox сразу и затем на каждом тике до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if summary := w.ProcessOnce(ctx); summary.Pulled > 0 {
			w.logger.WithFields(log.Fields{
				"pulled": summary.Pulled,
				"sent":   summary.Sent,
				"failed": summary.Failed,
			}).Debug("outbox batch processed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// BatchSummary содержит итог одного цикла.
type BatchSummary struct {
	Pulled int
	Sent   int
	Failed int
}

// ProcessOnce публикует один батч. Ошибки репозитория логируются, цикл повторится на следующем тике.
func (w *Worker) ProcessOnce(ctx context.Context) BatchSummary {
	var summary BatchSummary
	if ctx.Err() != nil {
		return summary
	}

	w.refreshBacklog(ctx)
	defer w.refreshBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return summary
	}
	summary.Pulled = len(batch)

	for _, event := range batch {
		if ctx.Err() != nil {
			break
		}
		entry := w.logger.WithFields(log.Fields{
			"outbox_id":  event.ID,
			"event_type": event.EventType,
			"order_id":   event.AggregateID,
		})

		if err := w.deliver(ctx, event); err != nil {
			if ctx.Err() != nil {
				// Остановка: сообщение остаётся pending.
				break
			}
			summary.Failed++
			w.metrics.RecordPublish(metrics.PublishResultFailed)
			entry.WithError(err).Error("outbox publish failed after retries")
			w.bury(ctx, entry, event, err)
			continue
		}

		summary.Sent++
		if err := w.repo.MarkSent(ctx, event.ID); err != nil {
			entry.WithError(err).Warn("failed to mark outbox message as sent")
		}
	}
	return summary
}

// deliver публикует событие, повторяя с экспоненциальной паузой.
func (w *Worker) deliver(ctx context.Context, event domain.OutboxMessage) error {
	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err = w.publisher.Publish(event); err == nil {
			w.metrics.RecordPublish(metrics.PublishResultSent)
			return nil
		}
		w.metrics.RecordPublish(metrics.PublishResultRetryError)

		if attempt == w.maxAttempts {
			break
		}
		if waitErr := pause(ctx, w.backoff(attempt)); waitErr != nil {
			return waitErr
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", w.maxAttempts, err)
}

// bury отправляет событие в DLQ и помечает его failed.
func (w *Worker) bury(ctx context.Context, entry *log.Entry, event domain.OutboxMessage, cause error) {
	if w.deadLetters != nil {
		if err := w.deadLetters.PublishDeadLetter(event, cause); err != nil {
			w.metrics.RecordPublish(metrics.PublishResultDLQFailed)
			entry.WithError(err).Warn("failed to publish to DLQ")
		}
	}
	if err := w.repo.MarkFailed(ctx, event.ID); err != nil {
		entry.WithError(err).Warn("failed to mark outbox message as failed")
	}
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	w.metrics.SetBacklog(stats.PendingCount, stats.OldestPendingAt, time.Now().UTC())
}

// backoff возвращает паузу после attempt-й неудачи: base, 2*base, 4*base...
func (w *Worker) backoff(attempt int) time.Duration {
	if w.retryDelay <= 0 {
		return 0
	}
	delay := w.retryDelay
	for i := 1; i < attempt; i++ {
		if delay > time.Duration(1<<62) {
			return delay
		}
		delay *= 2
	}
	return delay
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
