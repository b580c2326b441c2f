// Package catalog — готовые ресурсы витрины поверх оркестратора синхронизации:
// список товаров и отдельный заказ.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
	"github.com/vladislavdragonenkov/storefront-sync/internal/resource"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/syncer"
)

// Виды ресурсов.
const (
	KindProducts = "products"
	KindOrder    = "order"
)

// DefaultProductsTTL — через сколько каталог считается устаревшим.
const DefaultProductsTTL = 5 * time.Minute

// Catalog связывает удалённое хранилище, кэш и оркестратор.
type Catalog struct {
	remote       domain.RemoteStore
	cache        domain.CacheStore
	orchestrator *syncer.Orchestrator
	clock        syncer.Clock
	productsTTL  time.Duration
}

// Option настраивает Catalog.
type Option func(*Catalog)

// WithProductsTTL задаёт время жизни каталога в кэше.
func WithProductsTTL(ttl time.Duration) Option {
	return func(c *Catalog) { c.productsTTL = ttl }
}

// WithClock подменяет источник времени.
func WithClock(clock syncer.Clock) Option {
	return func(c *Catalog) { c.clock = clock }
}

// New создаёт Catalog.
func New(remote domain.RemoteStore, cache domain.CacheStore, orchestrator *syncer.Orchestrator, opts ...Option) *Catalog {
	c := &Catalog{
		remote:       remote,
		cache:        cache,
		orchestrator: orchestrator,
		clock:        time.Now,
		productsTTL:  DefaultProductsTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.orchestrator == nil {
		c.orchestrator = syncer.New()
	}
	return c
}

// ProductsResource отдаёт каталог из кэша сразу и идёт в сеть, когда кэш пуст или старше TTL.
// Момент загрузки фиксируется в fetch, поэтому повторная запись того же результата ничего не меняет.
func (c *Catalog) ProductsResource() syncer.Resource[ProductList, ProductList] {
	doc := syncer.NewCachedDocument[ProductList](c.cache, ProductsKey)
	return syncer.Funcs[ProductList, ProductList]{
		KindName: KindProducts,
		Cache:    doc.Read,
		Refresh: syncer.StaleAfter(c.clock, func(l ProductList) time.Time {
			return l.FetchedAt
		}, c.productsTTL),
		Fetch: c.fetchProducts,
		Save:  doc.Write,
	}
}

// OrderResource загружает заказ по id. policy nil означает «сеть только при пустом кэше».
func (c *Catalog) OrderResource(orderID string, policy syncer.Policy[OrderDocument]) syncer.Resource[OrderDocument, OrderDocument] {
	if policy == nil {
		policy = syncer.WhenEmpty[OrderDocument]()
	}
	doc := syncer.NewCachedDocument[OrderDocument](c.cache, OrderKey(orderID))
	return syncer.Funcs[OrderDocument, OrderDocument]{
		KindName: KindOrder,
		KeyName:  orderID,
		Cache:    doc.Read,
		Refresh:  policy,
		Fetch: func(ctx context.Context) (OrderDocument, error) {
			return c.fetchOrder(ctx, orderID)
		},
		Save: doc.Write,
	}
}

// Products запускает загрузку каталога.
func (c *Catalog) Products(ctx context.Context) <-chan resource.State[ProductList] {
	return syncer.Load(ctx, c.orchestrator, c.ProductsResource())
}

// Order запускает загрузку заказа. Заказ всегда перепроверяется в сети: статус меняет администратор.
func (c *Catalog) Order(ctx context.Context, orderID string) <-chan resource.State[OrderDocument] {
	return syncer.Load(ctx, c.orchestrator, c.OrderResource(orderID, syncer.Always[OrderDocument]()))
}

// PublishOrder записывает документ заказа в удалённое хранилище и в кэш.
func (c *Catalog) PublishOrder(ctx context.Context, order domain.Order) error {
	document := NewOrderDocument(order)
	data, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", order.ID, err)
	}
	if err := c.remote.Write(ctx, CollectionOrders, order.ID, data); err != nil {
		return fmt.Errorf("write order %s: %w", order.ID, err)
	}
	return syncer.NewCachedDocument[OrderDocument](c.cache, OrderKey(order.ID)).Write(ctx, document)
}

func (c *Catalog) fetchProducts(ctx context.Context) (ProductList, error) {
	docs, err := c.remote.List(ctx, CollectionProducts)
	if err != nil {
		return ProductList{}, err
	}
	fetchedAt := c.clock().UTC()
	products := make([]Product, 0, len(docs))
	for _, raw := range docs {
		var product Product
		if err := json.Unmarshal(raw, &product); err != nil {
			return ProductList{}, fmt.Errorf("%w: decode product: %v", domain.ErrFetchFailed, err)
		}
		products = append(products, product)
	}
	return ProductList{Products: products, FetchedAt: fetchedAt}, nil
}

func (c *Catalog) fetchOrder(ctx context.Context, orderID string) (OrderDocument, error) {
	raw, err := c.remote.Fetch(ctx, CollectionOrders, orderID)
	if err != nil {
		return OrderDocument{}, err
	}
	var document OrderDocument
	if err := json.Unmarshal(raw, &document); err != nil {
		return OrderDocument{}, fmt.Errorf("%w: decode order %s: %v", domain.ErrFetchFailed, orderID, err)
	}
	return document, nil
}
