package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
)

// CartRepository — in-memory корзина. Все мутации выполняются под одной блокировкой,
// поэтому слияние количества по ProductID атомарно относительно чтений.
type CartRepository struct {
	mu        sync.RWMutex
	now       func() time.Time
	lines     map[string]domain.CartLine
	byProduct map[string]string
}

// NewCartRepository создаёт пустую корзину.
func NewCartRepository() *CartRepository {
	return &CartRepository{
		now:       func() time.Time { return time.Now().UTC() },
		lines:     make(map[string]domain.CartLine),
		byProduct: make(map[string]string),
	}
}

// Add добавляет строку или суммирует количество в строку с тем же ProductID.
func (r *CartRepository) Add(_ context.Context, line domain.CartLine) (domain.CartLine, error) {
	if errs := line.Validate(); len(errs) > 0 {
		return domain.CartLine{}, errors.Join(errs...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if line.ID != "" {
		if taken, ok := r.lines[line.ID]; ok && taken.ProductID != line.ProductID {
			return domain.CartLine{}, fmt.Errorf("%w: line %s holds %s", domain.ErrCartLineConflict, line.ID, taken.ProductID)
		}
	}
	if lineID, ok := r.byProduct[line.ProductID]; ok {
		existing := r.lines[lineID]
		if err := domain.ValidateQuantity(existing.Quantity + line.Quantity); err != nil {
			return domain.CartLine{}, err
		}
		existing.Quantity += line.Quantity
		existing.UpdatedAt = now
		r.lines[lineID] = existing
		return existing, nil
	}

	if line.ID == "" {
		line.ID = uuid.NewString()
	}
	if line.DiscountPriceMinor != nil {
		discount := *line.DiscountPriceMinor
		line.DiscountPriceMinor = &discount
	}
	line.CreatedAt = now
	line.UpdatedAt = now
	r.lines[line.ID] = line
	r.byProduct[line.ProductID] = line.ID
	return line, nil
}

// UpdateQuantity заменяет количество строки. Остаток каталога не проверяется.
func (r *CartRepository) UpdateQuantity(_ context.Context, lineID string, qty int) (bool, error) {
	if err := domain.ValidateQuantity(qty); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	line, ok := r.lines[lineID]
	if !ok {
		return false, nil
	}
	line.Quantity = qty
	line.UpdatedAt = r.now()
	r.lines[lineID] = line
	return true, nil
}

// Remove удаляет строку; отсутствие строки не ошибка.
func (r *CartRepository) Remove(_ context.Context, lineID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	line, ok := r.lines[lineID]
	if !ok {
		return false, nil
	}
	delete(r.lines, lineID)
	delete(r.byProduct, line.ProductID)
	return true, nil
}

// Clear очищает корзину.
func (r *CartRepository) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines = make(map[string]domain.CartLine)
	r.byProduct = make(map[string]string)
	return nil
}

// Deduct списывает снапшот под той же блокировкой, что и Add.
func (r *CartRepository) Deduct(_ context.Context, snapshot []domain.CartLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, taken := range snapshot {
		line, ok := r.lines[taken.ID]
		if !ok || line.ProductID != taken.ProductID {
			continue
		}
		if line.Quantity <= taken.Quantity {
			delete(r.lines, line.ID)
			delete(r.byProduct, line.ProductID)
			continue
		}
		line.Quantity -= taken.Quantity
		line.UpdatedAt = now
		r.lines[line.ID] = line
	}
	return nil
}

// Lines возвращает снапшот строк по CreatedAt, затем по ID.
func (r *CartRepository) Lines(_ context.Context) ([]domain.CartLine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshotLocked(), nil
}

// ItemCount считается по снапшоту, отдельного счётчика нет.
func (r *CartRepository) ItemCount(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return domain.ItemCount(r.snapshotLocked()), nil
}

// Contains проверяет наличие товара в корзине.
func (r *CartRepository) Contains(_ context.Context, productID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byProduct[productID]
	return ok, nil
}

func (r *CartRepository) snapshotLocked() []domain.CartLine {
	result := make([]domain.CartLine, 0, len(r.lines))
	for _, line := range r.lines {
		result = append(result, line)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

var _ domain.CartRepository = (*CartRepository)(nil)
