package domain

// orderTransitions — единственная таблица допустимых переходов статусов заказа.
// Её читают и путь записи (lifecycle.Service), и UI через AvailableTransitions.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipping, OrderStatusCancelled},
	OrderStatusShipping:   {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  {OrderStatusCompleted},
	OrderStatusCompleted:  {},
	OrderStatusCancelled:  {},
}

// OrderStatuses возвращает все известные статусы в порядке жизненного цикла.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusProcessing,
		OrderStatusShipping,
		OrderStatusDelivered,
		OrderStatusCompleted,
		OrderStatusCancelled,
	}
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// IsTerminal сообщает, что из статуса нет исходящих переходов.
func (s OrderStatus) IsTerminal() bool {
	next, ok := orderTransitions[s]
	return ok && len(next) == 0
}

// AvailableTransitions возвращает копию списка статусов, в которые можно перейти из current.
// Для неизвестного статуса возвращается пустой список.
func AvailableTransitions(current OrderStatus) []OrderStatus {
	next := orderTransitions[current]
	result := make([]OrderStatus, len(next))
	copy(result, next)
	return result
}

// CanTransition проверяет переход from → to по таблице. Переход в тот же статус запрещён.
func CanTransition(from, to OrderStatus) bool {
	for _, candidate := range orderTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
