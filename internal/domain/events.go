package domain

import "time"

// AggregateOrder — тип агрегата для событий заказа.
const (
	AggregateOrder = "order"
)

// OrderStatusChangedPayload — тело события OrderStatusChanged в outbox и Kafka.
type OrderStatusChangedPayload struct {
	OrderID    string      `json:"order_id"`
	CustomerID string      `json:"customer_id,omitempty"`
	From       OrderStatus `json:"from"`
	To         OrderStatus `json:"to"`
	Actor      Actor       `json:"actor"`
	Reason     string      `json:"reason,omitempty"`
	Version    int64       `json:"version"`
	Timestamp  time.Time   `json:"ts"`
}

// OrderCreatedPayload — тело события OrderCreated.
type OrderCreatedPayload struct {
	OrderID     string    `json:"order_id"`
	CustomerID  string    `json:"customer_id"`
	Currency    string    `json:"currency"`
	AmountMinor int64     `json:"amount_minor"`
	ItemCount   int       `json:"item_count"`
	Timestamp   time.Time `json:"ts"`
}
