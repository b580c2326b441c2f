package catalog

import (
	"time"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
)

// Коллекции удалённого хранилища.
const (
	CollectionProducts = "products"
	CollectionOrders   = "orders"
)

// Ключи локального кэша.
const (
	ProductsKey    = "products"
	orderKeyPrefix = "order:"
)

// OrderKey возвращает ключ кэша для заказа.
func OrderKey(orderID string) string {
	return orderKeyPrefix + orderID
}

// OrderKeyPrefix — префикс всех закэшированных заказов.
func OrderKeyPrefix() string {
	return orderKeyPrefix
}

// Product — карточка товара в каталоге.
type Product struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	PriceMinor         int64     `json:"price_minor"`
	DiscountPriceMinor *int64    `json:"discount_price_minor,omitempty"`
	Currency           string    `json:"currency"`
	AvailableQty       int       `json:"available_qty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CartLine собирает строку корзины из карточки товара.
func (p Product) CartLine(qty int) domain.CartLine {
	line := domain.CartLine{
		ProductID:      p.ID,
		Quantity:       qty,
		UnitPriceMinor: p.PriceMinor,
		AvailableQty:   p.AvailableQty,
	}
	if p.DiscountPriceMinor != nil {
		discount := *p.DiscountPriceMinor
		line.DiscountPriceMinor = &discount
	}
	return line
}

// ProductList — закэшированный каталог вместе с моментом загрузки.
type ProductList struct {
	Products  []Product `json:"products"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Find ищет товар по id.
func (l ProductList) Find(id string) (Product, bool) {
	for _, p := range l.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// Позиция заказа в удалённом хранилище.
type OrderItemDocument struct {
	ID         string `json:"id"`
	ProductID  string `json:"product_id"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

// OrderDocument — представление заказа в удалённом хранилище и в кэше.
type OrderDocument struct {
	ID          string              `json:"id"`
	CustomerID  string              `json:"customer_id"`
	Status      domain.OrderStatus  `json:"status"`
	Currency    string              `json:"currency"`
	AmountMinor int64               `json:"amount_minor"`
	Items       []OrderItemDocument `json:"items"`
	Version     int64               `json:"version"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// NewOrderDocument переводит заказ в документ.
func NewOrderDocument(order domain.Order) OrderDocument {
	items := make([]OrderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDocument{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}
	return OrderDocument{
		ID:          order.ID,
		CustomerID:  order.CustomerID,
		Status:      order.Status,
		Currency:    order.Currency,
		AmountMinor: order.AmountMinor,
		Items:       items,
		Version:     order.Version,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}

// Order переводит документ обратно в доменный заказ.
func (d OrderDocument) Order() domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
			CreatedAt:  d.CreatedAt,
		})
	}
	return domain.Order{
		ID:          d.ID,
		CustomerID:  d.CustomerID,
		Status:      d.Status,
		Currency:    d.Currency,
		AmountMinor: d.AmountMinor,
		Items:       items,
		Version:     d.Version,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
