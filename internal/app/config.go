package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront-sync/internal/messaging/kafka"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"

	RemoteDriverMemory = "memory"
	RemoteDriverRedis  = "redis"
)

// Config описывает настройки запуска приложения.
//
// StorageDriver отвечает за заказы, outbox и timeline. CacheDriver и CartDriver
// выбирают хранилище локального кэша и корзины устройства.
type Config struct {
	MetricsAddr string `koanf:"metrics_addr"`

	StorageDriver       string `koanf:"storage_driver"`
	PostgresDSN         string `koanf:"postgres_dsn"`
	PostgresAutoMigrate bool   `koanf:"postgres_auto_migrate"`
	PostgresMaxConns    int    `koanf:"postgres_max_conns"`

	CacheDriver string `koanf:"cache_driver"`
	CartDriver  string `koanf:"cart_driver"`
	SQLitePath  string `koanf:"sqlite_path"`

	RemoteDriver   string `koanf:"remote_driver"`
	RedisAddr      string `koanf:"redis_addr"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db"`
	RedisKeyPrefix string `koanf:"redis_key_prefix"`

	// Брокеры через запятую; пустой список отключает Kafka.
	KafkaBrokers             string `koanf:"kafka_brokers"`
	KafkaClientID            string `koanf:"kafka_client_id"`
	KafkaTopic               string `koanf:"kafka_topic"`
	KafkaGroupID             string `koanf:"kafka_group_id"`
	KafkaConsumeStatusEvents bool   `koanf:"kafka_consume_status_events"`
	KafkaMaxRetries          int    `koanf:"kafka_max_retries"`

	FetchDedup    bool          `koanf:"fetch_dedup"`
	ProductsTTL   time.Duration `koanf:"products_ttl"`
	WarmUpCatalog bool          `koanf:"warm_up_catalog"`

	// Через сколько удаляются закэшированные заказы; 0 отключает очистку.
	CacheRetention       time.Duration `koanf:"cache_retention"`
	CacheJanitorInterval time.Duration `koanf:"cache_janitor_interval"`

	OutboxPollInterval time.Duration `koanf:"outbox_poll_interval"`
	OutboxBatchSize    int           `koanf:"outbox_batch_size"`
	OutboxMaxAttempts  int           `koanf:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `koanf:"outbox_retry_delay"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:          ":9090",
		StorageDriver:        StorageDriverMemory,
		PostgresAutoMigrate:  true,
		PostgresMaxConns:     25,
		CacheDriver:          StorageDriverMemory,
		CartDriver:           StorageDriverMemory,
		SQLitePath:           "storefront.db",
		RemoteDriver:         RemoteDriverMemory,
		RedisAddr:            "localhost:6379",
		RedisKeyPrefix:       "storefront:",
		KafkaClientID:        "storefront-sync",
		KafkaTopic:           kafka.TopicOrderEvents,
		KafkaGroupID:         "storefront-sync-cache",
		KafkaMaxRetries:      3,
		FetchDedup:           true,
		ProductsTTL:          5 * time.Minute,
		WarmUpCatalog:        true,
		CacheRetention:       7 * 24 * time.Hour,
		CacheJanitorInterval: time.Hour,
		OutboxPollInterval:   time.Second,
		OutboxBatchSize:      100,
		OutboxMaxAttempts:    3,
		OutboxRetryDelay:     50 * time.Millisecond,
		ShutdownTimeout:      5 * time.Second,
	}
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.CacheDriver {
	case StorageDriverMemory, StorageDriverSQLite:
	case StorageDriverPostgres:
		if c.StorageDriver != StorageDriverPostgres {
			errs = append(errs, errors.New("postgres cache requires postgres storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported cache driver %q", c.CacheDriver))
	}

	switch c.CartDriver {
	case StorageDriverMemory, StorageDriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported cart driver %q", c.CartDriver))
	}

	if c.usesSQLite() && c.SQLitePath == "" {
		errs = append(errs, errors.New("sqlite_path is required for sqlite drivers"))
	}

	switch c.RemoteDriver {
	case RemoteDriverMemory:
	case RemoteDriverRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr is required for redis remote"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported remote driver %q", c.RemoteDriver))
	}

	if c.PostgresMaxConns < 0 {
		errs = append(errs, errors.New("postgres_max_conns must be >= 0"))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("outbox_poll_interval must be > 0"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox_batch_size must be > 0"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox_max_attempts must be > 0"))
	}
	if c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("outbox_retry_delay must be >= 0"))
	}
	if c.CacheRetention < 0 {
		errs = append(errs, errors.New("cache_retention must be >= 0"))
	}
	if c.CacheRetention > 0 && c.CacheJanitorInterval <= 0 {
		errs = append(errs, errors.New("cache_janitor_interval must be > 0 when cache_retention is set"))
	}
	if c.KafkaMaxRetries <= 0 {
		errs = append(errs, errors.New("kafka_max_retries must be > 0"))
	}

	return errors.Join(errs...)
}

func (c Config) usesSQLite() bool {
	return c.CacheDriver == StorageDriverSQLite || c.CartDriver == StorageDriverSQLite
}

func (c Config) usesPostgres() bool {
	return c.StorageDriver == StorageDriverPostgres || c.CacheDriver == StorageDriverPostgres
}
