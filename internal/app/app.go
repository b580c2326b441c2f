package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront-sync/internal/health"
	"github.com/vladislavdragonenkov/storefront-sync/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront-sync/internal/metrics"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/janitor"
	"github.com/vladislavdragonenkov/storefront-sync/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront-sync/internal/version"
)

const defaultShutdownTimeout = 5 * time.Second

// Run поднимает хранилища, сервисы синхронизации и фоновые воркеры и работает до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := deps.closeFn(); closeErr != nil {
			logger.WithError(closeErr).Warn("failed to close storage")
		}
	}()

	svc := newServices(cfg, deps, metrics.NewSyncMetrics(), logger)

	healthHandler := healthcheck.NewHandler(version.Current().Version)
	deps.registerCheckers(healthHandler)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	// Kafka необязательна: без неё события остаются в outbox до следующего запуска.
	bridge := openKafka(cfg, logger)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	workerDone := startOutboxWorker(workerCtx, cfg, deps.outboxRepo, bridge.producer, logger)

	bridge.listen(ctx, cfg, kafka.NewOrderCacheInvalidator(svc.invalidator, logger.WithField("component", "order-status-consumer")))

	var background sync.WaitGroup
	if cfg.WarmUpCatalog {
		background.Add(1)
		go func() {
			defer background.Done()
			svc.warmUpCatalog(ctx, logger.WithField("component", "catalog"))
		}()
	}

	background.Add(1)
	go func() {
		defer background.Done()
		newCacheJanitor(cfg, deps.cacheStore, logger).Run(ctx)
	}()

	logger.WithFields(version.Current().Fields()).Info("storefront sync started")

	<-ctx.Done()
	logger.Info("получен сигнал остановки, останавливаем фоновые процессы")

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownOutboxWorker(cancelWorker, workerDone, timeout, logger)
	bridge.close()
	shutdownHTTP(metricsSrv, logger)
	background.Wait()

	return ctx.Err()
}

// startOutboxWorker запускает публикацию outbox в Kafka. Без producer воркер не стартует.
// Возвращаемый канал закрывается после остановки воркера.
func startOutboxWorker(ctx context.Context, cfg Config, repo domain.OutboxRepository, producer *kafka.Producer, logger *log.Entry) <-chan struct{} {
	done := make(chan struct{})
	if producer == nil {
		logger.Info("kafka is not configured, outbox worker is disabled")
		close(done)
		return done
	}

	worker := outbox.NewWorker(
		repo,
		kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetrics()),
		outbox.WithDeadLetters(kafka.NewDeadLetterPublisher(producer)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}

// newCacheJanitor настраивает очистку закэшированных заказов. Каталог обновляется по TTL и не чистится.
func newCacheJanitor(cfg Config, cache domain.CacheStore, logger *log.Entry) *janitor.Worker {
	return janitor.NewWorker(cache,
		janitor.WithLogger(logger.WithField("component", "cache-janitor")),
		janitor.WithMetrics(metrics.NewCacheMetrics()),
		janitor.WithRetention(cfg.CacheRetention),
		janitor.WithInterval(cfg.CacheJanitorInterval),
		janitor.WithPrefixes(catalog.OrderKeyPrefix()),
	)
}

// shutdownOutboxWorker останавливает воркер и ждёт завершения текущего цикла не дольше timeout.
func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, timeout time.Duration, logger *log.Entry) {
	cancel()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("outbox worker shutdown timeout exceeded")
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus и health probes.
// opsMux — служебные endpoints: метрики и пробы.
func opsMux(healthHandler *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: opsMux(healthHandler), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
