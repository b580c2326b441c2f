package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
)

// orderRepository держит заказы в памяти с индексом по покупателю.
type orderRepository struct {
	mu         sync.RWMutex
	orders     map[string]domain.Order
	byCustomer map[string][]string
}

// NewOrderRepository возвращает in-memory репозиторий заказов для локального запуска и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepository{
		orders:     make(map[string]domain.Order),
		byCustomer: make(map[string][]string),
	}
}

// Create сохраняет копию заказа. Для занятого ID возвращает ErrOrderVersionConflict.
func (r *orderRepository) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.orders[order.ID]; taken {
		return domain.ErrOrderVersionConflict
	}
	r.orders[order.ID] = order.Clone()
	r.byCustomer[order.CustomerID] = append(r.byCustomer[order.CustomerID], order.ID)
	return nil
}

func (r *orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// ListByCustomer возвращает заказы от новых к старым; при limit <= 0 все.
func (r *orderRepository) ListByCustomer(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	ids := r.byCustomer[customerID]
	orders := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, r.orders[id].Clone())
	}
	r.mu.RUnlock()

	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

// Save принимает заказ только с текущей версией и увеличивает её на единицу.
func (r *orderRepository) Save(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	switch {
	case !ok:
		return domain.ErrOrderNotFound
	case stored.Version != order.Version:
		return domain.ErrOrderVersionConflict
	}

	next := order.Clone()
	next.Version = stored.Version + 1
	r.orders[order.ID] = next
	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
