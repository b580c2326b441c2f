package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront-sync/internal/health"
	remotememory "github.com/vladislavdragonenkov/storefront-sync/internal/remote/memory"
	"github.com/vladislavdragonenkov/storefront-sync/internal/remote/redisstore"
	"github.com/vladislavdragonenkov/storefront-sync/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront-sync/internal/storage/postgres"
	"github.com/vladislavdragonenkov/storefront-sync/internal/storage/sqlite"
)

const healthCheckTimeout = 2 * time.Second

// runtimeDependencies содержит хранилища, выбранные конфигурацией.
type runtimeDependencies struct {
	repo         domain.OrderRepository
	outboxRepo   domain.OutboxRepository
	timelineRepo domain.TimelineRepository
	cacheStore   domain.CacheStore
	cartRepo     domain.CartRepository
	remote       domain.RemoteStore

	storageChecker healthcheck.Checker
	localChecker   healthcheck.Checker
	remoteChecker  healthcheck.Checker

	closeFn func() error
}

// initRuntimeDependencies открывает хранилища. При ошибке уже открытые подключения закрываются.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (deps *runtimeDependencies, err error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps = &runtimeDependencies{}
	var closers []func() error
	defer func() {
		if err != nil {
			_ = closeAll(closers)
		}
	}()

	var pgStore *postgres.Store
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		deps.repo = memory.NewOrderRepository()
		deps.outboxRepo = memory.NewOutboxRepository()
		deps.timelineRepo = memory.NewTimelineRepository()
		deps.storageChecker = healthcheck.Static("storage")
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres dsn is required for postgres storage driver")
		}
		pgStore, err = postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxConns(cfg.PostgresMaxConns, cfg.PostgresMaxConns))
		if err != nil {
			return nil, err
		}
		closers = append(closers, pgStore.Close)
		if cfg.PostgresAutoMigrate {
			if err = pgStore.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		deps.repo = postgres.NewOrderRepository(pgStore)
		deps.outboxRepo = postgres.NewOutboxRepository(pgStore)
		deps.timelineRepo = postgres.NewTimelineRepository(pgStore)
		deps.storageChecker = healthcheck.Critical("storage", healthCheckTimeout, pgStore.Ping)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	var sqliteStore *sqlite.Store
	if cfg.usesSQLite() {
		sqliteStore, err = sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		closers = append(closers, sqliteStore.Close)
		deps.localChecker = healthcheck.Critical("local", healthCheckTimeout, sqliteStore.Ping)
	} else {
		deps.localChecker = healthcheck.Static("local")
	}

	switch cfg.CacheDriver {
	case "", StorageDriverMemory:
		deps.cacheStore = memory.NewCacheStore()
	case StorageDriverSQLite:
		deps.cacheStore = sqlite.NewCacheStore(sqliteStore)
	case StorageDriverPostgres:
		if pgStore == nil {
			return nil, errors.New("postgres cache requires postgres storage driver")
		}
		deps.cacheStore = postgres.NewCacheStore(pgStore)
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", cfg.CacheDriver)
	}

	switch cfg.CartDriver {
	case "", StorageDriverMemory:
		deps.cartRepo = memory.NewCartRepository()
	case StorageDriverSQLite:
		deps.cartRepo = sqlite.NewCartRepository(sqliteStore)
	default:
		return nil, fmt.Errorf("unsupported cart driver %q", cfg.CartDriver)
	}

	switch cfg.RemoteDriver {
	case "", RemoteDriverMemory:
		deps.remote = remotememory.New()
		deps.remoteChecker = healthcheck.Static("remote")
	case RemoteDriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		closers = append(closers, rdb.Close)
		store := redisstore.New(rdb, cfg.RedisKeyPrefix)
		// Недоступный remote не мешает старту: витрина работает из кэша.
		if pingErr := store.Ping(ctx); pingErr != nil {
			logger.WithError(pingErr).Warn("remote store is unreachable, serving from local cache")
		}
		deps.remote = store
		deps.remoteChecker = healthcheck.Optional("remote", healthCheckTimeout, store.Ping)
	default:
		return nil, fmt.Errorf("unsupported remote driver %q", cfg.RemoteDriver)
	}

	deps.closeFn = func() error {
		return closeAll(closers)
	}

	logger.WithFields(log.Fields{
		"storage": driverName(cfg.StorageDriver),
		"cache":   driverName(cfg.CacheDriver),
		"cart":    driverName(cfg.CartDriver),
		"remote":  driverName(cfg.RemoteDriver),
	}).Info("runtime dependencies initialized")
	return deps, nil
}

// registerCheckers подключает проверки хранилищ к health handler.
func (d *runtimeDependencies) registerCheckers(handler *healthcheck.Handler) {
	if d.storageChecker != nil {
		handler.RegisterChecker("storage", d.storageChecker)
	}
	if d.localChecker != nil {
		handler.RegisterChecker("local", d.localChecker)
	}
	if d.remoteChecker != nil {
		handler.RegisterChecker("remote", d.remoteChecker)
	}
}

// closeAll закрывает ресурсы в обратном порядке открытия.
func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func driverName(driver string) string {
	if driver == "" {
		return StorageDriverMemory
	}
	return driver
}
