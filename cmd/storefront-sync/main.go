package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-sync/internal/app"
	"github.com/vladislavdragonenkov/storefront-sync/internal/version"
)

const (
	envPrefix     = "STOREFRONT_"
	envConfigFile = envPrefix + "CONFIG_FILE"
	envLogLevel   = envPrefix + "LOG_LEVEL"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

// loadConfig собирает конфигурацию: значения по умолчанию, затем YAML-файл (если задан),
// затем переменные окружения STOREFRONT_*. Некорректные значения заменяются
// значениями по умолчанию с предупреждением.
func loadConfig(configFile string) (app.Config, []string, error) {
	k := koanf.New(".")

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return app.Config{}, nil, fmt.Errorf("load config file %s: %w", configFile, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return app.Config{}, nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := app.DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return app.Config{}, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg, warnings := normalizeConfig(cfg)
	return cfg, warnings, nil
}

// normalizeConfig приводит драйверы к нижнему регистру и откатывает невалидные числа к дефолтам.
func normalizeConfig(cfg app.Config) (app.Config, []string) {
	defaults := app.DefaultConfig()
	var warnings []string

	cfg.StorageDriver = normalizeDriver(cfg.StorageDriver)
	cfg.CacheDriver = normalizeDriver(cfg.CacheDriver)
	cfg.CartDriver = normalizeDriver(cfg.CartDriver)
	cfg.RemoteDriver = normalizeDriver(cfg.RemoteDriver)
	cfg.PostgresDSN = strings.TrimSpace(cfg.PostgresDSN)
	cfg.SQLitePath = strings.TrimSpace(cfg.SQLitePath)
	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	cfg.KafkaBrokers = strings.TrimSpace(cfg.KafkaBrokers)

	if cfg.OutboxPollInterval <= 0 {
		warnings = append(warnings, fmt.Sprintf("outbox_poll_interval=%s is invalid, using %s", cfg.OutboxPollInterval, defaults.OutboxPollInterval))
		cfg.OutboxPollInterval = defaults.OutboxPollInterval
	}
	if cfg.OutboxBatchSize <= 0 {
		warnings = append(warnings, fmt.Sprintf("outbox_batch_size=%d is invalid, using %d", cfg.OutboxBatchSize, defaults.OutboxBatchSize))
		cfg.OutboxBatchSize = defaults.OutboxBatchSize
	}
	if cfg.OutboxMaxAttempts <= 0 {
		warnings = append(warnings, fmt.Sprintf("outbox_max_attempts=%d is invalid, using %d", cfg.OutboxMaxAttempts, defaults.OutboxMaxAttempts))
		cfg.OutboxMaxAttempts = defaults.OutboxMaxAttempts
	}
	if cfg.OutboxRetryDelay < 0 {
		warnings = append(warnings, fmt.Sprintf("outbox_retry_delay=%s is invalid, using %s", cfg.OutboxRetryDelay, defaults.OutboxRetryDelay))
		cfg.OutboxRetryDelay = defaults.OutboxRetryDelay
	}
	if cfg.KafkaMaxRetries <= 0 {
		warnings = append(warnings, fmt.Sprintf("kafka_max_retries=%d is invalid, using %d", cfg.KafkaMaxRetries, defaults.KafkaMaxRetries))
		cfg.KafkaMaxRetries = defaults.KafkaMaxRetries
	}
	if cfg.ProductsTTL <= 0 {
		warnings = append(warnings, fmt.Sprintf("products_ttl=%s is invalid, using %s", cfg.ProductsTTL, defaults.ProductsTTL))
		cfg.ProductsTTL = defaults.ProductsTTL
	}

	return cfg, warnings
}

func normalizeDriver(driver string) string {
	return strings.ToLower(strings.TrimSpace(driver))
}

func main() {
	setupLogger(os.Getenv(envLogLevel))

	cfg, warnings, err := loadConfig(strings.TrimSpace(os.Getenv(envConfigFile)))
	if err != nil {
		log.WithError(err).Fatal("не удалось загрузить конфигурацию")
	}
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"metrics_addr":  cfg.MetricsAddr,
		"storage":       cfg.StorageDriver,
		"cache":         cfg.CacheDriver,
		"cart":          cfg.CartDriver,
		"remote":        cfg.RemoteDriver,
		"kafka_enabled": cfg.KafkaBrokers != "",
		"version":       version.Current().Version,
	}).Info("запускаем storefront-sync")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("storefront-sync остановлен")
}
