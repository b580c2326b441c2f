package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront-sync/internal/storage/memory"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.StorageDriver = StorageDriverMemory

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_SQLiteGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.CacheDriver = StorageDriverSQLite
	cfg.CartDriver = StorageDriverSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "storefront.db")

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := Run(ctx, cfg)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"
	cfg.MetricsAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}
}

func TestShutdownOutboxWorker_Timeout(t *testing.T) {
	done := make(chan struct{})
	cancelled := false

	start := time.Now()
	shutdownOutboxWorker(func() { cancelled = true }, done, 20*time.Millisecond, log.WithField("test", "outbox"))

	if !cancelled {
		t.Fatal("cancel should be called")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("shutdown should wait for the worker up to timeout")
	}
}

func TestStartOutboxWorker_DisabledWithoutProducer(t *testing.T) {
	done := startOutboxWorker(context.Background(), DefaultConfig(), nil, nil, log.WithField("test", "outbox"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled worker should report done immediately")
	}
}

func TestNewCacheJanitor_EvictsOnlyOrders(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := memory.NewCacheStoreWithClock(func() time.Time { return now.Add(-30 * 24 * time.Hour) })
	ctx := context.Background()
	if err := cache.Put(ctx, catalog.OrderKey("order-1"), []byte(`{}`)); err != nil {
		t.Fatalf("Put order: %v", err)
	}
	if err := cache.Put(ctx, catalog.ProductsKey, []byte(`{}`)); err != nil {
		t.Fatalf("Put products: %v", err)
	}

	cfg := DefaultConfig()
	evicted, err := newCacheJanitor(cfg, cache, log.WithField("component", "test")).Evict(ctx, now)
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if evicted != 1 {
		t.Fatalf("expected one evicted order, got %d", evicted)
	}
	if _, err := cache.Get(ctx, catalog.ProductsKey); err != nil {
		t.Fatalf("catalog must stay cached: %v", err)
	}
	if _, err := cache.Get(ctx, catalog.OrderKey("order-1")); !errors.Is(err, domain.ErrCacheMiss) {
		t.Fatalf("expected order to be evicted, got %v", err)
	}
}
