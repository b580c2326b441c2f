package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка неизвестного статуса заказа.
	ErrStatusUnknown = errors.New("order status is unknown")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrInvalidTransition — переход статуса не разрешён таблицей жизненного цикла.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrActorNotAllowed — сторона не вправе выполнять такой переход (покупатель может только отменить заказ).
	ErrActorNotAllowed = errors.New("actor is not allowed to change order status")

	// Ошибка строки корзины без product_id.
	ErrCartProductRequired = errors.New("cart line product_id is required")
	// Ошибка количества в строке корзины вне диапазона 1..MaxLineQuantity.
	ErrCartQtyInvalid = errors.New("cart line quantity must be between 1 and 2147483647")
	// Ошибка оформления пустой корзины.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrCartLineConflict возвращается, если ID строки уже занят другим товаром.
	ErrCartLineConflict = errors.New("cart line id belongs to another product")

	// ErrCacheMiss возвращается, если в локальном кэше нет записи по ключу.
	ErrCacheMiss = errors.New("cache miss")
	// ErrPersistence — ошибка чтения или записи локального хранилища.
	ErrPersistence = errors.New("local persistence failure")

	// ErrFetchFailed оборачивает ошибку сетевого шага синхронизации.
	ErrFetchFailed = errors.New("remote fetch failed")
	// ErrRemoteUnavailable — удалённое хранилище недоступно (сеть, таймаут).
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	// ErrPermissionDenied — удалённое хранилище отклонило запрос по правам.
	ErrPermissionDenied = errors.New("remote store permission denied")
	// ErrRemoteNotFound возвращается, если документа нет в удалённом хранилище.
	ErrRemoteNotFound = errors.New("remote document not found")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// TransitionError описывает отклонённый переход статуса заказа.
type TransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *TransitionError) Error() string {
	if e.OrderID == "" {
		return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
	}
	return fmt.Sprintf("%s: order %s %s -> %s", ErrInvalidTransition, e.OrderID, e.From, e.To)
}

// Unwrap позволяет сравнивать ошибку через errors.Is(err, ErrInvalidTransition).
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsInvalidTransition проверяет, что переход отклонён жизненным циклом.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsTransientFetch сообщает, что ошибку сетевого шага можно пережить, отдав устаревший кэш.
func IsTransientFetch(err error) bool {
	return errors.Is(err, ErrFetchFailed) || errors.Is(err, ErrRemoteUnavailable)
}
