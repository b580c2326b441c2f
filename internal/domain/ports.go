package domain

import (
	"context"
	"time"
)

// RemoteStore описывает внешнее документное хранилище (бэкенд витрины).
// Реализации должны сводить сетевые ошибки к ErrRemoteUnavailable,
// а отказ по правам к ErrPermissionDenied.
type RemoteStore interface {
	// Fetch возвращает документ collection/id или ErrRemoteNotFound.
	Fetch(ctx context.Context, collection, id string) ([]byte, error)
	// List возвращает все документы коллекции.
	List(ctx context.Context, collection string) ([][]byte, error)
	// Write создаёт или перезаписывает документ.
	Write(ctx context.Context, collection, id string, doc []byte) error
}

// CacheStore — локальный ключ-значение кэш, общий для всех оркестраторов процесса.
type CacheStore interface {
	// Get возвращает запись или ErrCacheMiss.
	Get(ctx context.Context, key string) (CacheEntry, error)
	// Put перезаписывает значение по ключу (last write wins).
	Put(ctx context.Context, key string, value []byte) error
	// Delete удаляет запись; отсутствие записи не ошибка.
	Delete(ctx context.Context, key string) error
	// Keys возвращает ключи с заданным префиксом в лексикографическом порядке.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// OrderRepository хранит оформленные заказы. Save использует optimistic locking:
// при расхождении Version возвращается ErrOrderVersionConflict.
type OrderRepository interface {
	// Create падает, если заказ с таким ID уже есть.
	Create(ctx context.Context, order Order) error
	// Get возвращает ErrOrderNotFound для неизвестного id.
	Get(ctx context.Context, id string) (Order, error)
	// ListByCustomer отдаёт не больше limit заказов; limit <= 0 снимает ограничение.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	Save(ctx context.Context, order Order) error
}

// CartRepository — персистентная локальная корзина с merge-on-add семантикой.
type CartRepository interface {
	// Add добавляет строку; при совпадении ProductID суммирует количество в существующую строку.
	Add(ctx context.Context, line CartLine) (CartLine, error)
	// UpdateQuantity заменяет количество строки lineID. false, если строки нет.
	UpdateQuantity(ctx context.Context, lineID string, qty int) (bool, error)
	// Remove удаляет строку. false, если строки нет.
	Remove(ctx context.Context, lineID string) (bool, error)
	// Clear очищает корзину целиком.
	Clear(ctx context.Context) error
	// Deduct списывает оформленный снапшот: строка удаляется, если в ней не больше снапшота,
	// иначе из неё вычитается количество снапшота. Добавленное после снапшота остаётся в корзине.
	Deduct(ctx context.Context, snapshot []CartLine) error
	// Lines возвращает снапшот строк, упорядоченный по CreatedAt и ID.
	Lines(ctx context.Context) ([]CartLine, error)
	// ItemCount возвращает сумму количеств по текущему снапшоту.
	ItemCount(ctx context.Context) (int, error)
	// Contains проверяет наличие строки с productID.
	Contains(ctx context.Context, productID string) (bool, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// StatusObserver получает уведомление ровно один раз на каждый успешный переход статуса.
type StatusObserver interface {
	OnStatusChanged(ctx context.Context, change StatusChange)
}

// StatusChange описывает применённый переход.
type StatusChange struct {
	OrderID    string
	CustomerID string
	From       OrderStatus
	To         OrderStatus
	Actor      Actor
	Reason     string
	At         time.Time
}

// Actor — сторона, инициировавшая изменение статуса.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorAdmin    Actor = "admin"
	ActorSystem   Actor = "system"
)

// Valid проверяет, что сторона известна.
func (a Actor) Valid() bool {
	switch a {
	case ActorCustomer, ActorAdmin, ActorSystem:
		return true
	default:
		return false
	}
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
