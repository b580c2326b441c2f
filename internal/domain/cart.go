package domain

import (
	"math"
	"time"
)

// MaxLineQuantity ограничивает количество в строке: позиция заказа хранит его в int32.
const MaxLineQuantity = math.MaxInt32

// CartLine — позиция локальной корзины. На один ProductID приходится не больше одной строки.
type CartLine struct {
	// ID строки, не совпадает с ProductID.
	ID        string
	ProductID string
	Quantity  int
	// Цена за единицу в минимальных денежных единицах.
	UnitPriceMinor int64
	// Цена со скидкой; nil, если скидки нет.
	DiscountPriceMinor *int64
	// Закэшированный остаток из каталога, используется только для UI-границ.
	AvailableQty int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EffectivePriceMinor возвращает цену за единицу с учётом скидки.
func (l CartLine) EffectivePriceMinor() int64 {
	if l.DiscountPriceMinor != nil {
		return *l.DiscountPriceMinor
	}
	return l.UnitPriceMinor
}

// SubtotalMinor возвращает стоимость строки: quantity * effective price.
func (l CartLine) SubtotalMinor() int64 {
	return int64(l.Quantity) * l.EffectivePriceMinor()
}

// Validate проверяет поля строки перед добавлением в корзину.
func (l *CartLine) Validate() []error {
	var errs []error

	if l.ProductID == "" {
		errs = append(errs, ErrCartProductRequired)
	}
	if err := ValidateQuantity(l.Quantity); err != nil {
		errs = append(errs, err)
	}
	if l.UnitPriceMinor < 0 {
		errs = append(errs, ErrItemPriceInvalid)
	}
	if l.DiscountPriceMinor != nil && *l.DiscountPriceMinor < 0 {
		errs = append(errs, ErrItemPriceInvalid)
	}

	return errs
}

// ValidateQuantity проверяет количество строки: от 1 до MaxLineQuantity.
func ValidateQuantity(qty int) error {
	if qty < 1 || qty > MaxLineQuantity {
		return ErrCartQtyInvalid
	}
	return nil
}

// ItemCount считает суммарное количество единиц по снапшоту строк.
func ItemCount(lines []CartLine) int {
	total := 0
	for _, line := range lines {
		total += line.Quantity
	}
	return total
}

// ContainsProduct проверяет наличие товара среди строк.
func ContainsProduct(lines []CartLine, productID string) bool {
	for _, line := range lines {
		if line.ProductID == productID {
			return true
		}
	}
	return false
}
