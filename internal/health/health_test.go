package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestProbe_Check(t *testing.T) {
	t.Parallel()

	down := errors.New("connection refused")
	tests := []struct {
		name        string
		probe       *Probe
		wantStatus  Status
		wantMessage string
	}{
		{name: "static", probe: Static("local"), wantStatus: StatusHealthy},
		{name: "critical ok", probe: Critical("storage", time.Second, failing(nil)), wantStatus: StatusHealthy},
		{name: "critical down", probe: Critical("storage", time.Second, failing(down)), wantStatus: StatusUnhealthy, wantMessage: down.Error()},
		{name: "optional down", probe: Optional("remote", time.Second, failing(down)), wantStatus: StatusDegraded, wantMessage: down.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			check := tt.probe.Check(context.Background())
			assert.Equal(t, tt.wantStatus, check.Status)
			assert.Equal(t, tt.wantMessage, check.Message)
			assert.Equal(t, tt.probe.name, check.Name)
		})
	}
}

func TestProbe_CheckAppliesTimeout(t *testing.T) {
	t.Parallel()

	probe := Critical("storage", 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	check := probe.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, check.Status)
	assert.Contains(t, check.Message, context.DeadlineExceeded.Error())
}

func TestHandler_EvaluateTakesWorstStatus(t *testing.T) {
	t.Parallel()

	down := errors.New("down")
	tests := []struct {
		name   string
		probes map[string]Checker
		want   Status
	}{
		{name: "no probes", probes: nil, want: StatusHealthy},
		{
			name:   "all healthy",
			probes: map[string]Checker{"storage": Static("storage"), "local": Static("local")},
			want:   StatusHealthy,
		},
		{
			name: "optional failure degrades",
			probes: map[string]Checker{
				"storage": Static("storage"),
				"remote":  Optional("remote", time.Second, failing(down)),
			},
			want: StatusDegraded,
		},
		{
			name: "critical failure wins over degraded",
			probes: map[string]Checker{
				"storage": Critical("storage", time.Second, failing(down)),
				"remote":  Optional("remote", time.Second, failing(down)),
			},
			want: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHandler("v-test")
			for name, probe := range tt.probes {
				h.RegisterChecker(name, probe)
			}

			report := h.Evaluate(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Checks, len(tt.probes))
			assert.Equal(t, "v-test", report.Version)
		})
	}
}

func TestHandler_EvaluateRunsProbesConcurrently(t *testing.T) {
	t.Parallel()

	var inflight atomic.Int32
	release := make(chan struct{})
	slow := func(context.Context) error {
		if inflight.Add(1) == 3 {
			close(release)
		}
		select {
		case <-release:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("probes ran sequentially")
		}
	}

	h := NewHandler("v-test")
	for _, name := range []string{"storage", "local", "remote"} {
		h.RegisterChecker(name, Critical(name, 5*time.Second, slow))
	}

	report := h.Evaluate(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
}

func TestHandler_RegisterCheckerReplaces(t *testing.T) {
	t.Parallel()

	h := NewHandler("")
	h.RegisterChecker("remote", Critical("remote", time.Second, failing(errors.New("down"))))
	h.RegisterChecker("remote", Static("remote"))

	assert.Equal(t, StatusHealthy, h.Evaluate(context.Background()).Status)
}

func TestHandler_HTTP(t *testing.T) {
	t.Parallel()

	down := errors.New("down")
	tests := []struct {
		name      string
		probe     Checker
		wantCode  int
		wantReady int
		readyBody string
	}{
		{name: "healthy", probe: Static("storage"), wantCode: http.StatusOK, wantReady: http.StatusOK, readyBody: "ready"},
		{name: "degraded stays ready", probe: Optional("remote", time.Second, failing(down)), wantCode: http.StatusOK, wantReady: http.StatusOK, readyBody: "ready"},
		{name: "unhealthy", probe: Critical("storage", time.Second, failing(down)), wantCode: http.StatusServiceUnavailable, wantReady: http.StatusServiceUnavailable, readyBody: "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHandler("v1.2.3")
			h.RegisterChecker("probe", tt.probe)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			require.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var report Report
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
			assert.Equal(t, "v1.2.3", report.Version)
			assert.Contains(t, report.Checks, "probe")
			assert.GreaterOrEqual(t, report.UptimeSeconds, int64(0))

			rec = httptest.NewRecorder()
			h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.wantReady, rec.Code)
			assert.Equal(t, tt.readyBody, rec.Body.String())
		})
	}
}

func TestHandler_UsesRequestContext(t *testing.T) {
	t.Parallel()

	h := NewHandler("")
	h.RegisterChecker("storage", Critical("storage", time.Minute, func(ctx context.Context) error {
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLivenessHandler(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
