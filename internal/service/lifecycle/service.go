// Package lifecycle — путь записи статусов заказа.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
	"github.com/vladislavdragonenkov/storefront-sync/internal/metrics"
)

const (
	maxSaveAttempts = 3
	baseRetryDelay  = 10 * time.Millisecond
)

// Service применяет переходы статусов с optimistic locking и публикует их последствия:
// запись в timeline, событие в outbox и уведомление наблюдателей.
type Service struct {
	orders    domain.OrderRepository
	timeline  domain.TimelineRepository
	outbox    domain.OutboxRepository
	observers []domain.StatusObserver
	metrics   *metrics.SyncMetrics
	logger    *log.Entry
	now       func() time.Time
	delay     time.Duration
}

// Option настраивает Service.
type Option func(*Service)

// WithTimeline подключает хранилище timeline.
func WithTimeline(repo domain.TimelineRepository) Option {
	return func(s *Service) { s.timeline = repo }
}

// WithOutbox подключает transactional outbox.
func WithOutbox(repo domain.OutboxRepository) Option {
	return func(s *Service) { s.outbox = repo }
}

// WithObservers добавляет наблюдателей за сменой статуса.
func WithObservers(observers ...domain.StatusObserver) Option {
	return func(s *Service) { s.observers = append(s.observers, observers...) }
}

// WithMetrics включает метрики переходов.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRetryDelay задаёт базовую задержку между попытками сохранения при конфликте версий.
func WithRetryDelay(delay time.Duration) Option {
	return func(s *Service) { s.delay = delay }
}

// NewService создаёт сервис жизненного цикла поверх репозитория заказов.
func NewService(orders domain.OrderRepository, opts ...Option) *Service {
	s := &Service{
		orders: orders,
		now:    time.Now,
		delay:  baseRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "order-lifecycle")
	}
	return s
}

// ApplyTransition переводит заказ в target от имени actor.
// Покупатель может только отменить заказ, остальные переходы выполняет администратор или система.
// При конфликте версий заказ перечитывается и переход проверяется заново.
func (s *Service) ApplyTransition(ctx context.Context, orderID string, target domain.OrderStatus, actor domain.Actor, reason string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	if !target.Valid() {
		return domain.Order{}, fmt.Errorf("%w: %q", domain.ErrStatusUnknown, target)
	}
	if !actor.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unknown actor %q", domain.ErrActorNotAllowed, actor)
	}
	if actor == domain.ActorCustomer && target != domain.OrderStatusCancelled {
		return domain.Order{}, fmt.Errorf("%w: %s cannot move order to %s", domain.ErrActorNotAllowed, actor, target)
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"target":   target,
		"actor":    actor,
	})

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}
		from := order.Status

		if err := validateTransition(ctx, order, target); err != nil {
			if s.metrics != nil {
				s.metrics.RecordTransitionRejected(string(from), string(target))
			}
			logger.WithField("from", from).Info("transition rejected")
			return domain.Order{}, err
		}
		if err := order.ApplyTransition(target, s.now().UTC()); err != nil {
			return domain.Order{}, err
		}

		if err := s.orders.Save(ctx, order); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxSaveAttempts-1 {
				logger.WithFields(log.Fields{
					"attempt": attempt + 1,
					"version": order.Version,
				}).Warn("version conflict detected, retrying")
				if waitErr := sleep(ctx, s.delay*time.Duration(1<<uint(attempt))); waitErr != nil {
					return domain.Order{}, waitErr
				}
				continue
			}
			logger.WithError(err).WithField("attempt", attempt+1).Error("failed to persist status")
			return domain.Order{}, fmt.Errorf("save order %s: %w", orderID, err)
		}

		order.Version++
		change := domain.StatusChange{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			From:       from,
			To:         target,
			Actor:      actor,
			Reason:     reason,
			At:         order.UpdatedAt,
		}
		s.publish(ctx, order, change)
		logger.WithField("from", from).Info("order status changed")
		return order, nil
	}

	return domain.Order{}, domain.ErrOrderVersionConflict
}

// Cancel отменяет заказ. Доступно покупателю и администратору, пока статус не терминальный.
func (s *Service) Cancel(ctx context.Context, orderID string, actor domain.Actor, reason string) (domain.Order, error) {
	return s.ApplyTransition(ctx, orderID, domain.OrderStatusCancelled, actor, reason)
}

// AvailableActions возвращает статусы, в которые заказ можно перевести сейчас.
func (s *Service) AvailableActions(ctx context.Context, orderID string) ([]domain.OrderStatus, error) {
	if orderID == "" {
		return nil, domain.ErrOrderIDRequired
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return availableFrom(order.Status), nil
}

// Timeline возвращает историю заказа. Без подключённого timeline история пустая.
func (s *Service) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if orderID == "" {
		return nil, domain.ErrOrderIDRequired
	}
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.List(ctx, orderID)
}

// publish фиксирует последствия уже сохранённого перехода.
// Ошибки timeline и outbox логируются: статус к этому моменту записан.
func (s *Service) publish(ctx context.Context, order domain.Order, change domain.StatusChange) {
	if s.metrics != nil {
		s.metrics.RecordTransition(string(change.From), string(change.To))
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"event":    domain.EventOrderStatusChanged,
	})

	if s.timeline != nil {
		err := s.timeline.Append(ctx, domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     domain.StatusEventType(change.To),
			Actor:    change.Actor,
			Reason:   timelineReason(change),
			Occurred: change.At,
		})
		if err != nil {
			logger.WithError(err).Error("append timeline failed")
		}
	}

	if s.outbox != nil {
		payload, err := json.Marshal(domain.OrderStatusChangedPayload{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			From:       change.From,
			To:         change.To,
			Actor:      change.Actor,
			Reason:     change.Reason,
			Version:    order.Version,
			Timestamp:  change.At,
		})
		if err != nil {
			logger.WithError(err).Error("marshal event failed")
		} else if _, err := s.outbox.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: domain.AggregateOrder,
			AggregateID:   order.ID,
			EventType:     domain.EventOrderStatusChanged,
			Payload:       payload,
		}); err != nil {
			logger.WithError(err).Error("enqueue event failed")
		}
	}

	for _, observer := range s.observers {
		observer.OnStatusChanged(ctx, change)
	}
}

func timelineReason(change domain.StatusChange) string {
	if change.Reason == "" {
		return fmt.Sprintf("%s -> %s by %s", change.From, change.To, change.Actor)
	}
	return fmt.Sprintf("%s -> %s by %s: %s", change.From, change.To, change.Actor, change.Reason)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ObserverFunc позволяет использовать функцию как StatusObserver.
type ObserverFunc func(ctx context.Context, change domain.StatusChange)

func (f ObserverFunc) OnStatusChanged(ctx context.Context, change domain.StatusChange) {
	f(ctx, change)
}

var _ domain.StatusObserver = ObserverFunc(nil)
