package domain

import "time"

// События жизненного цикла заказа. Одни и те же имена пишутся в timeline и в outbox.
const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderCancelled     = "OrderCancelled"
)

// TimelineEvent — запись истории заказа, которую видит покупатель и администратор.
// Actor пустой у записей, созданных до появления колонки actor.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Actor    Actor
	Reason   string
	Occurred time.Time
}

// StatusEventType выбирает тип события для перехода в статус to:
// отмена выделяется отдельно, чтобы её было видно без разбора reason.
func StatusEventType(to OrderStatus) string {
	if to == OrderStatusCancelled {
		return EventOrderCancelled
	}
	return EventOrderStatusChanged
}
