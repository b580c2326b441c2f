package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront-sync/internal/health"
	"github.com/vladislavdragonenkov/storefront-sync/internal/metrics"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(memory) failed: %v", err)
	}
	defer deps.closeFn()

	if deps.repo == nil {
		t.Fatal("repo should not be nil for memory storage")
	}
	if deps.outboxRepo == nil {
		t.Fatal("outboxRepo should not be nil for memory storage")
	}
	if deps.timelineRepo == nil {
		t.Fatal("timelineRepo should not be nil for memory storage")
	}
	if deps.cacheStore == nil || deps.cartRepo == nil || deps.remote == nil {
		t.Fatal("local and remote stores should default to memory")
	}
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	if err == nil {
		t.Fatal("expected error when postgres driver is selected without DSN")
	}
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	if err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
}

func TestInitRuntimeDependencies_PostgresCacheWithoutPostgres(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
		CacheDriver:   StorageDriverPostgres,
	}, log.WithField("test", "postgres-cache"))
	require.Error(t, err)
}

func TestInitRuntimeDependencies_SQLiteLocalStores(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	deps, err := initRuntimeDependencies(ctx, Config{
		StorageDriver: StorageDriverMemory,
		CacheDriver:   StorageDriverSQLite,
		CartDriver:    StorageDriverSQLite,
		SQLitePath:    filepath.Join(t.TempDir(), "storefront.db"),
	}, log.WithField("test", "sqlite-local"))
	require.NoError(t, err)
	defer func() { require.NoError(t, deps.closeFn()) }()

	require.NoError(t, deps.cacheStore.Put(ctx, "products", []byte(`{"products":[]}`)))
	entry, err := deps.cacheStore.Get(ctx, "products")
	require.NoError(t, err)
	require.JSONEq(t, `{"products":[]}`, string(entry.Value))

	_, err = deps.cartRepo.Add(ctx, domain.CartLine{ProductID: "product-1", Quantity: 1, UnitPriceMinor: 100})
	require.NoError(t, err)
	count, err := deps.cartRepo.ItemCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.Equal(t, healthcheck.StatusHealthy, deps.localChecker.Check(context.Background()).Status)
}

func TestRegisterCheckers(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), DefaultConfig(), log.WithField("test", "checkers"))
	require.NoError(t, err)
	defer deps.closeFn()

	handler := healthcheck.NewHandler("test")
	deps.registerCheckers(handler)

	require.Equal(t, healthcheck.StatusHealthy, deps.storageChecker.Check(context.Background()).Status)
	require.Equal(t, healthcheck.StatusHealthy, deps.remoteChecker.Check(context.Background()).Status)
}

func TestCloseAll_ReverseOrderAndJoin(t *testing.T) {
	t.Parallel()

	var order []string
	err := closeAll([]func() error{
		func() error { order = append(order, "first"); return nil },
		func() error { order = append(order, "second"); return context.Canceled },
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{"second", "first"}, order)
}

func newTestServices(t *testing.T, cfg Config) (*runtimeDependencies, *services) {
	t.Helper()

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.closeFn() })

	svc := newServices(cfg, deps, metrics.NewSyncMetricsWithRegisterer(prometheus.NewRegistry()), log.WithField("test", t.Name()))
	return deps, svc
}
