// Package checkout превращает локальную корзину в заказ.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
	"github.com/vladislavdragonenkov/storefront-sync/internal/metrics"
)

// OrderPublisher доставляет документ заказа в удалённое хранилище.
type OrderPublisher interface {
	PublishOrder(ctx context.Context, order domain.Order) error
}

// Request — параметры оформления.
type Request struct {
	CustomerID string
	Currency   string
}

// Service оформляет заказ из корзины.
type Service struct {
	cart      domain.CartRepository
	orders    domain.OrderRepository
	outbox    domain.OutboxRepository
	timeline  domain.TimelineRepository
	publisher OrderPublisher
	metrics   *metrics.SyncMetrics
	logger    *log.Entry
	now       func() time.Time
	newID     func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithOutbox подключает outbox для события OrderCreated.
func WithOutbox(repo domain.OutboxRepository) Option {
	return func(s *Service) { s.outbox = repo }
}

// WithTimeline подключает timeline.
func WithTimeline(repo domain.TimelineRepository) Option {
	return func(s *Service) { s.timeline = repo }
}

// WithPublisher подключает запись заказа в удалённое хранилище.
func WithPublisher(p OrderPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics включает метрики.
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

// WithIDGenerator подменяет генератор идентификаторов заказа и позиций.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService создаёт сервис оформления.
func NewService(cart domain.CartRepository, orders domain.OrderRepository, opts ...Option) *Service {
	s := &Service{
		cart:   cart,
		orders: orders,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "checkout")
	}
	return s
}

// PlaceOrder снимает снапшот корзины в заказ в статусе pending.
// После сохранения заказа локально и в удалённом хранилище из корзины списывается только снапшот:
// строки, добавленные во время оформления, остаются.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (domain.Order, error) {
	lines, err := s.cart.Lines(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("read cart: %w", err)
	}
	if len(lines) == 0 {
		return domain.Order{}, domain.ErrCartEmpty
	}

	order, err := s.snapshot(req, lines)
	if err != nil {
		return domain.Order{}, err
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
	})

	if s.publisher != nil {
		if err := s.publisher.PublishOrder(ctx, order); err != nil {
			logger.WithError(err).Warn("publish order failed, cart kept")
			return domain.Order{}, err
		}
	}
	if err := s.orders.Create(ctx, order); err != nil {
		logger.WithError(err).Error("create order failed, cart kept")
		return domain.Order{}, fmt.Errorf("create order %s: %w", order.ID, err)
	}

	s.emitCreated(ctx, order, logger)

	if err := s.cart.Deduct(ctx, lines); err != nil {
		logger.WithError(err).Error("deduct cart after checkout failed")
		return order, fmt.Errorf("deduct cart: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
		s.metrics.RecordCartMutation("checkout", 0)
	}

	logger.WithFields(log.Fields{
		"amount_minor": order.AmountMinor,
		"items":        len(order.Items),
	}).Info("order placed")
	return order, nil
}

func (s *Service) snapshot(req Request, lines []domain.CartLine) (domain.Order, error) {
	now := s.now().UTC()
	order := domain.Order{
		ID:         s.newID(),
		CustomerID: req.CustomerID,
		Status:     domain.OrderStatusPending,
		Currency:   req.Currency,
		Items:      make([]domain.OrderItem, 0, len(lines)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, line := range lines {
		if err := domain.ValidateQuantity(line.Quantity); err != nil {
			return domain.Order{}, fmt.Errorf("cart line %s: %w", line.ID, err)
		}
		item := domain.OrderItem{
			ID:         s.newID(),
			ProductID:  line.ProductID,
			Qty:        int32(line.Quantity),
			PriceMinor: line.EffectivePriceMinor(),
			CreatedAt:  now,
		}
		order.Items = append(order.Items, item)
		order.AmountMinor += item.TotalMinor()
	}
	return order, nil
}

func (s *Service) emitCreated(ctx context.Context, order domain.Order, logger *log.Entry) {
	if s.timeline != nil {
		if err := s.timeline.Append(ctx, domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     domain.EventOrderCreated,
			Actor:    domain.ActorCustomer,
			Reason:   "checkout",
			Occurred: order.CreatedAt,
		}); err != nil {
			logger.WithError(err).Error("append timeline failed")
		}
	}

	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(domain.OrderCreatedPayload{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		Currency:    order.Currency,
		AmountMinor: order.AmountMinor,
		ItemCount:   len(order.Items),
		Timestamp:   order.CreatedAt,
	})
	if err != nil {
		logger.WithError(err).Error("marshal event failed")
		return
	}
	if _, err := s.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   order.ID,
		EventType:     domain.EventOrderCreated,
		Payload:       payload,
	}); err != nil {
		logger.WithError(err).Error("enqueue event failed")
	}
}
