package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/checkout"
)

const scenarioMethod = "scenario"

// Цепочка оператора после оформления заказа.
var fulfilmentSteps = []domain.OrderStatus{
	domain.OrderStatusProcessing,
	domain.OrderStatusShipping,
	domain.OrderStatusDelivered,
	domain.OrderStatusCompleted,
}

var errStaleOrder = errors.New("order document is stale")

// timed выполняет шаг сценария со своим таймаутом и записывает его длительность.
func timed[T any](rec *recorder, method string, timeout time.Duration, step func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	started := time.Now()
	result, err := step(ctx)
	rec.observe(method, time.Since(started), err)
	return result, err
}

// runScenario проигрывает сценарий одного покупателя на его устройстве.
func runScenario(h *harness, dev *device, cfg config, index int, runID string, rec *recorder) (err error) {
	started := time.Now()
	defer func() { rec.observe(scenarioMethod, time.Since(started), err) }()

	products, err := timed(rec, "LoadProducts", cfg.timeout, h.loadProducts)
	if err != nil || cfg.mode == modeBrowse {
		return err
	}

	product := products.Products[index%len(products.Products)]
	if _, err := timed(rec, "AddToCart", cfg.timeout, func(ctx context.Context) (domain.CartLine, error) {
		return dev.cart.Add(ctx, product.CartLine(1))
	}); err != nil {
		return err
	}

	order, err := timed(rec, "PlaceOrder", cfg.timeout, func(ctx context.Context) (domain.Order, error) {
		return dev.checkout.PlaceOrder(ctx, checkout.Request{
			CustomerID: fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index),
			Currency:   cfg.currency,
		})
	})
	if err != nil {
		return err
	}

	switch cfg.mode {
	case modeCheckoutCancel:
		if cancelled(index, cfg.cancelRate) {
			return transition(h, rec, cfg, "CancelOrder", order.ID, domain.OrderStatusCancelled, domain.ActorCustomer)
		}
	case modeCheckoutFulfil:
		for _, target := range fulfilmentSteps {
			if err := transition(h, rec, cfg, "AdvanceOrder", order.ID, target, domain.ActorAdmin); err != nil {
				return err
			}
		}
		_, err = timed(rec, "LoadOrder", cfg.timeout, func(ctx context.Context) (catalog.OrderDocument, error) {
			return h.loadOrder(ctx, order.ID, domain.OrderStatusCompleted)
		})
		return err
	}
	return nil
}

func transition(h *harness, rec *recorder, cfg config, method, orderID string, target domain.OrderStatus, actor domain.Actor) error {
	_, err := timed(rec, method, cfg.timeout, func(ctx context.Context) (domain.Order, error) {
		return h.lifecycle.ApplyTransition(ctx, orderID, target, actor, "loadtest")
	})
	return err
}

// cancelled детерминированно отбирает rate процентов сценариев.
func cancelled(index, rate int) bool {
	return rate > 0 && index%100 < rate
}

// outcome сводит ошибку к короткой метке для отчёта.
func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrRemoteUnavailable):
		return "remote_unavailable"
	case errors.Is(err, domain.ErrFetchFailed):
		return "fetch_failed"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence"
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrActorNotAllowed):
		return "rejected"
	case errors.Is(err, domain.ErrOrderVersionConflict):
		return "conflict"
	case errors.Is(err, domain.ErrCartEmpty):
		return "cart_empty"
	case errors.Is(err, errStaleOrder):
		return "stale"
	default:
		return "error"
	}
}
