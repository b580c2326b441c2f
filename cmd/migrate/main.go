// Команда migrate управляет схемой PostgreSQL витрины.
//
//	migrate -direction=up|down|status|check [-steps=N] [-dsn=...]
//
// check завершается с ошибкой, если в базе есть неприменённые миграции.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront-sync/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

var errPendingMigrations = errors.New("schema has pending migrations")

type options struct {
	direction string
	steps     int
	dsn       string
	timeout   time.Duration
}

// migrator — часть postgres.Store, которую использует команда.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (postgres.MigrationState, error)
}

var openMigrator = func(ctx context.Context, dsn string) (migrator, func() error, error) {
	store, err := postgres.Open(ctx, dsn, postgres.WithMaxConns(2, 1))
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func main() {
	opts, err := parseOptions(flag.CommandLine, os.Args[1:])
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	m, closeFn, err := openMigrator(ctx, opts.dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer func() { _ = closeFn() }()

	if err := run(ctx, opts, m, os.Stdout); err != nil {
		_ = closeFn()
		fail("%v", err)
	}
}

func parseOptions(fs *flag.FlagSet, args []string) (options, error) {
	var opts options
	fs.StringVar(&opts.direction, "direction", "up", "up|down|status|check")
	fs.IntVar(&opts.steps, "steps", 0, "migrations to apply (0 = all) or to roll back (0 = one)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: STOREFRONT_POSTGRES_DSN)")
	fs.DurationVar(&opts.timeout, "timeout", defaultTimeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	opts.dsn = strings.TrimSpace(opts.dsn)
	if opts.dsn == "" {
		opts.dsn = strings.TrimSpace(os.Getenv("STOREFRONT_POSTGRES_DSN"))
	}

	switch {
	case opts.dsn == "":
		return options{}, fmt.Errorf("STOREFRONT_POSTGRES_DSN (or -dsn) is required")
	case opts.steps < 0:
		return options{}, fmt.Errorf("steps must be >= 0")
	case opts.timeout <= 0:
		return options{}, fmt.Errorf("timeout must be > 0")
	}
	switch opts.direction {
	case "up", "down", "status", "check":
	default:
		return options{}, fmt.Errorf("unsupported direction: %s (use up|down|status|check)", opts.direction)
	}
	return opts, nil
}

func run(ctx context.Context, opts options, m migrator, out io.Writer) error {
	var prefix string
	switch opts.direction {
	case "up":
		if err := m.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
		prefix = "migrate up ok"
	case "down":
		if err := m.MigrateDown(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
		prefix = "migrate down ok"
	case "status", "check":
		prefix = "migration status"
	default:
		return fmt.Errorf("unsupported direction: %s", opts.direction)
	}

	state, err := m.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	printState(out, prefix, state)

	if opts.direction == "check" && !state.Current() {
		return fmt.Errorf("%w: %s", errPendingMigrations, strings.Join(state.Pending, ", "))
	}
	return nil
}

func printState(out io.Writer, prefix string, state postgres.MigrationState) {
	_, _ = fmt.Fprintf(out, "%s: version=%d applied=%d current=%t\n", prefix, state.Version, state.Applied, state.Current())
	for _, name := range state.Pending {
		_, _ = fmt.Fprintf(out, "  pending: %s\n", name)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
