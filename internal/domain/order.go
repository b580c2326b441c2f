package domain

import "time"

// OrderStatus — статус заказа витрины. Допустимые переходы задаёт lifecycle.go.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipping   OrderStatus = "shipping"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCompleted  OrderStatus = "completed"
	// OrderStatusCancelled достижим из любого незавершённого статуса.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderItem — снимок строки корзины на момент checkout.
// PriceMinor уже учитывает скидку товара.
type OrderItem struct {
	ID         string
	ProductID  string
	Qty        int32
	PriceMinor int64
	CreatedAt  time.Time
}

// TotalMinor возвращает стоимость позиции в минимальных единицах валюты.
func (i OrderItem) TotalMinor() int64 {
	return int64(i.Qty) * i.PriceMinor
}

// Order — оформленный заказ. После создания меняются только Status, UpdatedAt и Version.
type Order struct {
	ID          string
	CustomerID  string
	Status      OrderStatus
	Currency    string
	AmountMinor int64
	Items       []OrderItem
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemsTotalMinor суммирует позиции; у корректного заказа равна AmountMinor.
func (o *Order) ItemsTotalMinor() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.TotalMinor()
	}
	return total
}

// ValidateInvariants возвращает все нарушения сразу, в порядке проверки полей.
func (o *Order) ValidateInvariants() []error {
	var errs []error
	check := func(failed bool, err error) {
		if failed {
			errs = append(errs, err)
		}
	}

	check(o.CustomerID == "", ErrCustomerRequired)
	check(o.Currency == "", ErrCurrencyRequired)
	check(len(o.Items) == 0, ErrItemsRequired)
	check(o.AmountMinor < 0, ErrAmountNegative)
	check(!o.Status.Valid(), ErrStatusUnknown)
	for _, item := range o.Items {
		check(item.Qty <= 0, ErrItemQtyInvalid)
		check(item.PriceMinor < 0, ErrItemPriceInvalid)
	}
	check(o.ItemsTotalMinor() != o.AmountMinor, ErrAmountMismatch)
	return errs
}

// ApplyTransition переводит заказ в target, если переход разрешён таблицей.
// При отказе статус и UpdatedAt не меняются.
func (o *Order) ApplyTransition(target OrderStatus, now time.Time) error {
	if !CanTransition(o.Status, target) {
		return &TransitionError{OrderID: o.ID, From: o.Status, To: target}
	}
	o.Status = target
	o.UpdatedAt = now
	return nil
}

// Clone возвращает копию заказа с независимым срезом позиций.
func (o Order) Clone() Order {
	if o.Items != nil {
		items := make([]OrderItem, len(o.Items))
		copy(items, o.Items)
		o.Items = items
	}
	return o
}
