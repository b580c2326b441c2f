package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
	remotememory "github.com/vladislavdragonenkov/storefront-sync/internal/remote/memory"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/syncer"
	"github.com/vladislavdragonenkov/storefront-sync/internal/storage/memory"
)

// harness — общее для всех устройств окружение: удалённое хранилище, кэш и заказы.
type harness struct {
	store        *remotememory.Store
	orchestrator *syncer.Orchestrator
	catalog      *catalog.Catalog
	orders       domain.OrderRepository
	outbox       domain.OutboxRepository
	timeline     domain.TimelineRepository
	lifecycle    *lifecycle.Service
	logger       *log.Entry
}

// device — отдельное устройство покупателя со своей корзиной.
type device struct {
	cart     *cart.Service
	checkout *checkout.Service
}

func newHarness(ctx context.Context, cfg config, logger *log.Entry) (*harness, error) {
	store := remotememory.New()
	if err := seedProducts(ctx, store, cfg); err != nil {
		return nil, err
	}
	remote := latentRemote{RemoteStore: store, delay: cfg.remoteLatency}

	var opts []syncer.Option
	opts = append(opts, syncer.WithLogger(logger.WithField("component", "sync-orchestrator")))
	if cfg.dedup {
		opts = append(opts, syncer.WithFetchDedup())
	}
	orchestrator := syncer.New(opts...)

	h := &harness{
		store:        store,
		orchestrator: orchestrator,
		catalog:      catalog.New(remote, memory.NewCacheStore(), orchestrator, catalog.WithProductsTTL(cfg.productsTTL)),
		orders:       memory.NewOrderRepository(),
		outbox:       memory.NewOutboxRepository(),
		timeline:     memory.NewTimelineRepository(),
		logger:       logger,
	}
	h.lifecycle = lifecycle.NewService(h.orders,
		lifecycle.WithTimeline(h.timeline),
		lifecycle.WithOutbox(h.outbox),
		lifecycle.WithLogger(logger.WithField("component", "order-lifecycle")),
		lifecycle.WithObservers(lifecycle.ObserverFunc(h.republish)),
	)
	return h, nil
}

func (h *harness) newDevice() *device {
	repo := memory.NewCartRepository()
	return &device{
		cart: cart.NewService(repo, h.orchestrator, nil, h.logger.WithField("component", "cart")),
		checkout: checkout.NewService(repo, h.orders,
			checkout.WithOutbox(h.outbox),
			checkout.WithTimeline(h.timeline),
			checkout.WithPublisher(h.catalog),
			checkout.WithLogger(h.logger.WithField("component", "checkout")),
		),
	}
}

// republish переписывает документ заказа после смены статуса.
func (h *harness) republish(ctx context.Context, change domain.StatusChange) {
	order, err := h.orders.Get(ctx, change.OrderID)
	if err != nil {
		h.logger.WithError(err).WithField("order_id", change.OrderID).Warn("reload order failed")
		return
	}
	if err := h.catalog.PublishOrder(ctx, order); err != nil {
		h.logger.WithError(err).WithField("order_id", change.OrderID).Warn("publish order failed")
	}
}

func (h *harness) loadProducts(ctx context.Context) (catalog.ProductList, error) {
	state, ok := syncer.Last(ctx, h.orchestrator, h.catalog.ProductsResource())
	if !ok {
		return catalog.ProductList{}, interrupted(ctx)
	}
	if state.IsError() {
		return catalog.ProductList{}, fmt.Errorf("%w: %s", domain.ErrFetchFailed, state.Message())
	}
	list, present := state.Payload()
	if !present || len(list.Products) == 0 {
		return catalog.ProductList{}, errors.New("catalog is empty")
	}
	return list, nil
}

// loadOrder перечитывает заказ из сети и сверяет статус документа.
func (h *harness) loadOrder(ctx context.Context, orderID string, want domain.OrderStatus) (catalog.OrderDocument, error) {
	res := h.catalog.OrderResource(orderID, syncer.Always[catalog.OrderDocument]())
	state, ok := syncer.Last(ctx, h.orchestrator, res)
	if !ok {
		return catalog.OrderDocument{}, interrupted(ctx)
	}
	if state.IsError() {
		return catalog.OrderDocument{}, fmt.Errorf("%w: %s", domain.ErrFetchFailed, state.Message())
	}
	doc, present := state.Payload()
	if !present {
		return catalog.OrderDocument{}, fmt.Errorf("%w: order %s", domain.ErrRemoteNotFound, orderID)
	}
	if doc.Status != want {
		return doc, fmt.Errorf("%w: %s has %s, want %s", errStaleOrder, orderID, doc.Status, want)
	}
	return doc, nil
}

func (h *harness) remoteReport(ctx context.Context) remoteReport {
	fetches, lists, writes := h.store.Calls()
	result := remoteReport{Fetches: fetches, Lists: lists, Writes: writes}
	if stats, err := h.outbox.Stats(ctx); err == nil {
		result.OutboxPending = stats.PendingCount
	}
	return result
}

func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("load interrupted")
}

func seedProducts(ctx context.Context, store domain.RemoteStore, cfg config) error {
	now := time.Now().UTC()
	for i := 0; i < cfg.products; i++ {
		product := catalog.Product{
			ID:           fmt.Sprintf("load-product-%03d", i),
			Name:         fmt.Sprintf("Load product %d", i),
			PriceMinor:   cfg.priceMinor,
			Currency:     cfg.currency,
			AvailableQty: 1_000_000,
			UpdatedAt:    now,
		}
		data, err := json.Marshal(product)
		if err != nil {
			return fmt.Errorf("marshal product %s: %w", product.ID, err)
		}
		if err := store.Write(ctx, catalog.CollectionProducts, product.ID, data); err != nil {
			return fmt.Errorf("seed product %s: %w", product.ID, err)
		}
	}
	return nil
}

// latentRemote добавляет задержку к каждому вызову удалённого хранилища.
type latentRemote struct {
	domain.RemoteStore
	delay time.Duration
}

func (r latentRemote) Fetch(ctx context.Context, collection, id string) ([]byte, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.RemoteStore.Fetch(ctx, collection, id)
}

func (r latentRemote) List(ctx context.Context, collection string) ([][]byte, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.RemoteStore.List(ctx, collection)
}

func (r latentRemote) Write(ctx context.Context, collection, id string, doc []byte) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.RemoteStore.Write(ctx, collection, id, doc)
}

func (r latentRemote) wait(ctx context.Context) error {
	if r.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
