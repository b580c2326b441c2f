package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
)

func sampleOrder(id, customerID string, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:          id,
		CustomerID:  customerID,
		Status:      domain.OrderStatusPending,
		Currency:    "USD",
		AmountMinor: 400,
		Items: []domain.OrderItem{
			{ID: id + "-a", ProductID: "product-1", Qty: 2, PriceMinor: 150, CreatedAt: createdAt},
			{ID: id + "-b", ProductID: "product-2", Qty: 1, PriceMinor: 100, CreatedAt: createdAt.Add(time.Millisecond)},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestInsertItemsQuery(t *testing.T) {
	t.Parallel()

	order := sampleOrder("order-q", "customer-q", time.Unix(0, 0).UTC())
	query, args := insertItemsQuery(order)

	if !strings.Contains(query, "($1,$2,$3,$4,$5,$6),($7,$8,$9,$10,$11,$12)") {
		t.Fatalf("unexpected placeholders: %s", query)
	}
	if len(args) != 12 {
		t.Fatalf("expected 12 args, got %d", len(args))
	}
	if args[1] != order.ID || args[7] != order.ID {
		t.Fatalf("every row must reference the order id: %v", args)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{err: &pgconn.PgError{Code: pgUniqueViolation}, want: true},
		{err: &pgconn.PgError{Code: "22001"}, want: false},
		{err: errors.New("plain error"), want: false},
	}
	for _, tt := range tests {
		if got := isUniqueViolation(tt.err); got != tt.want {
			t.Fatalf("isUniqueViolation(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestOrderRepository_PostgresRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(openPostgresStoreForIntegrationTest(t))

	now := time.Now().UTC().Round(time.Microsecond)
	older := sampleOrder("order-older", "customer-1", now.Add(-2*time.Minute))
	newer := sampleOrder("order-newer", "customer-1", now.Add(-time.Minute))
	other := sampleOrder("order-other", "customer-2", now)
	for _, o := range []domain.Order{older, newer, other} {
		if err := repo.Create(ctx, o); err != nil {
			t.Fatalf("create %s: %v", o.ID, err)
		}
	}

	got, err := repo.Get(ctx, older.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CustomerID != older.CustomerID || got.AmountMinor != older.AmountMinor || got.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected order: %+v", got)
	}
	if len(got.Items) != 2 || got.Items[0].ProductID != "product-1" || got.Items[1].ProductID != "product-2" {
		t.Fatalf("unexpected items: %+v", got.Items)
	}

	limited, err := repo.ListByCustomer(ctx, "customer-1", 1)
	if err != nil {
		t.Fatalf("list with limit: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != newer.ID {
		t.Fatalf("expected newest order first, got %+v", limited)
	}

	all, err := repo.ListByCustomer(ctx, "customer-1", 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(all))
	}
	for _, o := range all {
		if len(o.Items) != 2 {
			t.Fatalf("order %s lost items: %+v", o.ID, o.Items)
		}
	}

	none, err := repo.ListByCustomer(ctx, "nobody", 0)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty list, got %v, %v", none, err)
	}
}

func TestOrderRepository_PostgresSaveVersioning(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(openPostgresStoreForIntegrationTest(t))

	now := time.Now().UTC().Round(time.Microsecond)
	order := sampleOrder("order-save", "customer-3", now)

	if err := repo.Save(ctx, order); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for missing order, got %v", err)
	}
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, order); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected ErrOrderVersionConflict on duplicate create, got %v", err)
	}

	next := order
	next.Status = domain.OrderStatusProcessing
	next.UpdatedAt = now.Add(time.Minute)
	if err := repo.Save(ctx, next); err != nil {
		t.Fatalf("save: %v", err)
	}

	stored, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get after save: %v", err)
	}
	if stored.Status != domain.OrderStatusProcessing || stored.Version != order.Version+1 {
		t.Fatalf("unexpected state after save: status=%s version=%d", stored.Status, stored.Version)
	}
	if !stored.UpdatedAt.Equal(next.UpdatedAt) {
		t.Fatalf("updated_at = %s, want %s", stored.UpdatedAt, next.UpdatedAt)
	}

	// Повтор со старой версией должен упасть.
	if err := repo.Save(ctx, next); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected ErrOrderVersionConflict on stale save, got %v", err)
	}
}
