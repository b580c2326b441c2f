package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
	"github.com/vladislavdragonenkov/storefront-sync/internal/metrics"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/syncer"
)

// services — прикладные сервисы поверх runtimeDependencies.
type services struct {
	orchestrator *syncer.Orchestrator
	invalidator  *syncer.Invalidator
	catalog      *catalog.Catalog
	cart         *cart.Service
	checkout     *checkout.Service
	lifecycle    *lifecycle.Service
}

// newServices собирает сервисы. Все ресурсы используют один оркестратор и один кэш.
func newServices(cfg Config, deps *runtimeDependencies, syncMetrics *metrics.SyncMetrics, logger *log.Entry) *services {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	orchestratorOpts := []syncer.Option{
		syncer.WithLogger(logger.WithField("component", "sync-orchestrator")),
		syncer.WithMetrics(syncMetrics),
	}
	if cfg.FetchDedup {
		orchestratorOpts = append(orchestratorOpts, syncer.WithFetchDedup())
	}
	orchestrator := syncer.New(orchestratorOpts...)

	var catalogOpts []catalog.Option
	if cfg.ProductsTTL > 0 {
		catalogOpts = append(catalogOpts, catalog.WithProductsTTL(cfg.ProductsTTL))
	}
	catalogSvc := catalog.New(deps.remote, deps.cacheStore, orchestrator, catalogOpts...)

	cartSvc := cart.NewService(deps.cartRepo, orchestrator, syncMetrics, logger.WithField("component", "cart"))

	checkoutSvc := checkout.NewService(deps.cartRepo, deps.repo,
		checkout.WithOutbox(deps.outboxRepo),
		checkout.WithTimeline(deps.timelineRepo),
		checkout.WithPublisher(catalogSvc),
		checkout.WithMetrics(syncMetrics),
		checkout.WithLogger(logger.WithField("component", "checkout")),
	)

	lifecycleLogger := logger.WithField("component", "order-lifecycle")
	lifecycleSvc := lifecycle.NewService(deps.repo,
		lifecycle.WithTimeline(deps.timelineRepo),
		lifecycle.WithOutbox(deps.outboxRepo),
		lifecycle.WithMetrics(syncMetrics),
		lifecycle.WithLogger(lifecycleLogger),
		lifecycle.WithObservers(orderDocumentPublisher(deps.repo, catalogSvc, lifecycleLogger)),
	)

	return &services{
		orchestrator: orchestrator,
		invalidator:  syncer.NewInvalidator(deps.cacheStore, logger.WithField("component", "cache-invalidator")),
		catalog:      catalogSvc,
		cart:         cartSvc,
		checkout:     checkoutSvc,
		lifecycle:    lifecycleSvc,
	}
}

// orderDocumentPublisher после смены статуса переписывает документ заказа в remote и в кэше.
// Ошибка remote не откатывает переход: документ обновится при следующей смене статуса.
func orderDocumentPublisher(orders domain.OrderRepository, catalogSvc *catalog.Catalog, logger *log.Entry) domain.StatusObserver {
	return lifecycle.ObserverFunc(func(ctx context.Context, change domain.StatusChange) {
		entry := logger.WithFields(log.Fields{
			"order_id": change.OrderID,
			"to":       change.To,
		})
		order, err := orders.Get(ctx, change.OrderID)
		if err != nil {
			entry.WithError(err).Warn("failed to reload order for publishing")
			return
		}
		if err := catalogSvc.PublishOrder(ctx, order); err != nil {
			entry.WithError(err).Warn("failed to publish order document")
			return
		}
		entry.Debug("order document published")
	})
}

// warmUpCatalog загружает каталог в кэш при старте.
func (s *services) warmUpCatalog(ctx context.Context, logger *log.Entry) {
	state, ok := syncer.Last(ctx, s.orchestrator, s.catalog.ProductsResource())
	if !ok {
		logger.Debug("catalog warm-up interrupted")
		return
	}
	if state.IsError() {
		logger.WithField("error", state.Message()).Warn("catalog warm-up failed")
		return
	}
	products := 0
	if list, present := state.Payload(); present {
		products = len(list.Products)
	}
	logger.WithField("products", products).Info("catalog warmed up")
}
