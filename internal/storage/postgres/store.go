// Package postgres хранит заказы, outbox, timeline и серверный кэш документов в PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// poolConfig — параметры пула соединений.
type poolConfig struct {
	connTimeout     time.Duration
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	connMaxIdleTime time.Duration
}

func defaultPoolConfig() poolConfig {
	return poolConfig{
		connTimeout:     5 * time.Second,
		maxOpenConns:    25,
		maxIdleConns:    25,
		connMaxLifetime: 30 * time.Minute,
		connMaxIdleTime: 5 * time.Minute,
	}
}

// Option настраивает пул соединений.
type Option func(*poolConfig)

// WithMaxConns ограничивает число открытых и простаивающих соединений.
func WithMaxConns(open, idle int) Option {
	return func(c *poolConfig) {
		if open > 0 {
			c.maxOpenConns = open
		}
		if idle >= 0 {
			c.maxIdleConns = idle
		}
	}
}

// WithConnLifetime задаёт время жизни и простоя соединения.
func WithConnLifetime(lifetime, idle time.Duration) Option {
	return func(c *poolConfig) {
		if lifetime > 0 {
			c.connMaxLifetime = lifetime
		}
		if idle > 0 {
			c.connMaxIdleTime = idle
		}
	}
}

// WithConnTimeout задаёт таймаут проверки соединения.
func WithConnTimeout(timeout time.Duration) Option {
	return func(c *poolConfig) {
		if timeout > 0 {
			c.connTimeout = timeout
		}
	}
}

// Store — пул соединений PostgreSQL, общий для всех репозиториев пакета.
type Store struct {
	db          *sql.DB
	connTimeout time.Duration
}

// Open подключается к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg := defaultPoolConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.maxOpenConns)
	db.SetMaxIdleConns(cfg.maxIdleConns)
	db.SetConnMaxLifetime(cfg.connMaxLifetime)
	db.SetConnMaxIdleTime(cfg.connMaxIdleTime)

	store := &Store{db: db, connTimeout: cfg.connTimeout}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB возвращает пул для запросов, которых нет в репозиториях (тесты, администрирование).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет соединение; используется health checker'ом.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	timeout := s.connTimeout
	if timeout <= 0 {
		timeout = defaultPoolConfig().connTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все ожидающие up-миграции. Вызывается при старте с auto-migrate.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает пул.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// *sql.DB или выделенное *sql.Conn.
type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// withTx выполняет fn в транзакции: commit при nil, rollback при ошибке.
func withTx(ctx context.Context, db txBeginner, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
