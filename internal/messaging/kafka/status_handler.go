package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/syncer"
)

// NewOrderCacheInvalidator возвращает обработчик, который сбрасывает закэшированный
// заказ при событиях OrderStatusChanged и OrderCreated. Следующая загрузка заказа пойдёт в сеть.
// Битые сообщения пропускаются: повторная обработка их не исправит.
func NewOrderCacheInvalidator(invalidator *syncer.Invalidator, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "order-cache-invalidator")
	}

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		envelope, err := ParseEnvelope(message)
		if err != nil {
			logger.WithError(err).WithField("offset", message.Offset).Warn("skip malformed message")
			return nil
		}

		switch envelope.EventType {
		case domain.EventOrderStatusChanged, domain.EventOrderCreated:
		default:
			return nil
		}

		orderID := envelope.AggregateID
		if envelope.EventType == domain.EventOrderStatusChanged {
			payload, err := envelope.StatusChanged()
			if err != nil {
				logger.WithError(err).WithField("event_id", envelope.ID).Warn("skip malformed status payload")
				return nil
			}
			if payload.OrderID != "" {
				orderID = payload.OrderID
			}
		}
		if orderID == "" {
			return nil
		}

		if err := invalidator.Invalidate(ctx, catalog.OrderKey(orderID)); err != nil {
			return fmt.Errorf("invalidate order %s: %w", orderID, err)
		}
		logger.WithFields(log.Fields{
			"order_id": orderID,
			"event":    envelope.EventType,
		}).Debug("cached order invalidated")
		return nil
	}
}
