package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront-sync/internal/storage/postgres"
)

type fakeMigrator struct {
	state     postgres.MigrationState
	statusErr error
	upErr     error
	downErr   error
	calls     []string
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.calls = append(f.calls, "up:"+strings.Repeat("+", steps))
	return f.upErr
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.calls = append(f.calls, "down:"+strings.Repeat("-", steps))
	return f.downErr
}

func (f *fakeMigrator) MigrationStatus(context.Context) (postgres.MigrationState, error) {
	f.calls = append(f.calls, "status")
	return f.state, f.statusErr
}

func parseArgs(args ...string) (options, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return parseOptions(fs, args)
}

func TestParseOptions(t *testing.T) {
	t.Setenv("STOREFRONT_POSTGRES_DSN", "")

	opts, err := parseArgs("-direction= DOWN ", "-steps=2", "-dsn=postgres://x")
	require.NoError(t, err)
	assert.Equal(t, options{direction: "down", steps: 2, dsn: "postgres://x", timeout: defaultTimeout}, opts)

	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"-direction=status"}, want: "is required"},
		{args: []string{"-dsn=postgres://x", "-steps=-1"}, want: "steps must be >= 0"},
		{args: []string{"-dsn=postgres://x", "-timeout=0s"}, want: "timeout must be > 0"},
		{args: []string{"-dsn=postgres://x", "-direction=sideways"}, want: "unsupported direction"},
		{args: []string{"-unknown"}, want: "flag provided but not defined"},
	}
	for _, tt := range tests {
		_, err := parseArgs(tt.args...)
		require.ErrorContains(t, err, tt.want, "args %v", tt.args)
	}
}

func TestParseOptions_DSNFromEnv(t *testing.T) {
	t.Setenv("STOREFRONT_POSTGRES_DSN", " postgres://env ")

	opts, err := parseArgs("-direction=check", "-timeout=5s")
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", opts.dsn)
	assert.Equal(t, 5*time.Second, opts.timeout)
}

func TestRun(t *testing.T) {
	boom := errors.New("boom")
	current := postgres.MigrationState{Version: 3, Applied: 3}
	behind := postgres.MigrationState{Version: 1, Applied: 1, Pending: []string{"0002_carts", "0003_timeline"}}

	tests := []struct {
		name      string
		opts      options
		fake      fakeMigrator
		wantErr   string
		wantCalls []string
		wantOut   string
	}{
		{
			name:      "up all",
			opts:      options{direction: "up"},
			fake:      fakeMigrator{state: current},
			wantCalls: []string{"up:", "status"},
			wantOut:   "migrate up ok: version=3 applied=3 current=true\n",
		},
		{
			name:      "down two",
			opts:      options{direction: "down", steps: 2},
			fake:      fakeMigrator{state: behind},
			wantCalls: []string{"down:--", "status"},
			wantOut:   "migrate down ok: version=1 applied=1 current=false\n  pending: 0002_carts\n  pending: 0003_timeline\n",
		},
		{
			name:      "status is read only",
			opts:      options{direction: "status"},
			fake:      fakeMigrator{state: behind},
			wantCalls: []string{"status"},
		},
		{
			name:      "check fails with pending migrations",
			opts:      options{direction: "check"},
			fake:      fakeMigrator{state: behind},
			wantErr:   "0002_carts, 0003_timeline",
			wantCalls: []string{"status"},
		},
		{
			name:      "check passes on current schema",
			opts:      options{direction: "check"},
			fake:      fakeMigrator{state: current},
			wantCalls: []string{"status"},
		},
		{
			name:      "up error stops before status",
			opts:      options{direction: "up"},
			fake:      fakeMigrator{upErr: boom},
			wantErr:   "migrate up failed",
			wantCalls: []string{"up:"},
		},
		{
			name:      "status error",
			opts:      options{direction: "down"},
			fake:      fakeMigrator{statusErr: boom},
			wantErr:   "migration status failed",
			wantCalls: []string{"down:", "status"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := tt.fake
			var out bytes.Buffer

			err := run(context.Background(), tt.opts, &fake, &out)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, fake.calls)
			if tt.wantOut != "" {
				assert.Equal(t, tt.wantOut, out.String())
			}
		})
	}
}

func TestRun_CheckWrapsSentinel(t *testing.T) {
	fake := &fakeMigrator{state: postgres.MigrationState{Pending: []string{"0001_init"}}}
	err := run(context.Background(), options{direction: "check"}, fake, io.Discard)
	require.ErrorIs(t, err, errPendingMigrations)
}

func TestRun_PostgresRoundTrip(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("STOREFRONT_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("STOREFRONT_POSTGRES_TEST_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m, closeFn, err := openMigrator(ctx, dsn)
	if err != nil {
		t.Skipf("postgres is not available: %v", err)
	}
	defer func() { _ = closeFn() }()

	var out bytes.Buffer
	require.NoError(t, run(ctx, options{direction: "up"}, m, &out))
	require.NoError(t, run(ctx, options{direction: "check"}, m, &out))
	require.NoError(t, run(ctx, options{direction: "down", steps: 1}, m, &out))
	require.ErrorIs(t, run(ctx, options{direction: "check"}, m, &out), errPendingMigrations)
	require.NoError(t, run(ctx, options{direction: "up"}, m, &out))
	assert.Contains(t, out.String(), "migrate down ok")
}

func TestFailExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_FAIL_EXIT=1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotZero(t, exitErr.ExitCode())
	assert.Contains(t, stderr.String(), "forced failure 42")
}
