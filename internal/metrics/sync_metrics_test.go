package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()

	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)

	m := <-ch
	metric := &dto.Metric{}
	if err := m.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter != nil {
		return metric.Counter.GetValue()
	}
	return metric.Gauge.GetValue()
}

func TestNewSyncMetricsWithRegisterer(t *testing.T) {
	metrics := NewSyncMetricsWithRegisterer(prometheus.NewRegistry())

	if metrics == nil {
		t.Fatal("NewSyncMetricsWithRegisterer should not return nil")
	}
	if metrics.loads == nil || metrics.fetchDuration == nil || metrics.fetchShared == nil {
		t.Error("orchestrator collectors should not be nil")
	}
	if metrics.cartMutations == nil || metrics.cartItems == nil {
		t.Error("cart collectors should not be nil")
	}
	if metrics.transitions == nil || metrics.transitionDenied == nil || metrics.ordersCreated == nil {
		t.Error("lifecycle collectors should not be nil")
	}
}

func TestNewSyncMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewSyncMetricsWithRegisterer(reg)
	second := NewSyncMetricsWithRegisterer(reg)

	first.RecordOrderCreated()
	second.RecordOrderCreated()

	if got := counterValue(t, first.ordersCreated); got != 2.0 {
		t.Errorf("expected shared counter value 2.0, got %f", got)
	}
}

func TestRecordLoad(t *testing.T) {
	metrics := NewSyncMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordLoad("products", LoadResultCache)
	metrics.RecordLoad("products", LoadResultCache)
	metrics.RecordLoad("products", LoadResultStale)

	if got := counterValue(t, metrics.loads.WithLabelValues("products", LoadResultCache)); got != 2.0 {
		t.Errorf("expected cache loads 2.0, got %f", got)
	}
	if got := counterValue(t, metrics.loads.WithLabelValues("products", LoadResultStale)); got != 1.0 {
		t.Errorf("expected stale loads 1.0, got %f", got)
	}
}

func TestRecordFetchInFlight(t *testing.T) {
	metrics := NewSyncMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordFetchStarted()
	metrics.RecordFetchStarted()
	if got := counterValue(t, metrics.inflightFetch); got != 2.0 {
		t.Fatalf("expected 2 fetches in flight, got %f", got)
	}

	metrics.RecordFetchFinished("orders", 15*time.Millisecond)
	if got := counterValue(t, metrics.inflightFetch); got != 1.0 {
		t.Errorf("expected 1 fetch in flight, got %f", got)
	}
}

func TestRecordCartMutation(t *testing.T) {
	metrics := NewSyncMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordCartMutation("add", 2)
	metrics.RecordCartMutation("add", 5)

	if got := counterValue(t, metrics.cartMutations.WithLabelValues("add")); got != 2.0 {
		t.Errorf("expected 2 add mutations, got %f", got)
	}
	if got := counterValue(t, metrics.cartItems); got != 5.0 {
		t.Errorf("expected cart items gauge 5.0, got %f", got)
	}
}

func TestRecordTransitions(t *testing.T) {
	metrics := NewSyncMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordTransition("pending", "processing")
	metrics.RecordTransitionRejected("pending", "delivered")
	metrics.RecordFetchShared("orders")
	metrics.RecordPersistFailure("orders")

	if got := counterValue(t, metrics.transitions.WithLabelValues("pending", "processing")); got != 1.0 {
		t.Errorf("expected 1 transition, got %f", got)
	}
	if got := counterValue(t, metrics.transitionDenied.WithLabelValues("pending", "delivered")); got != 1.0 {
		t.Errorf("expected 1 rejected transition, got %f", got)
	}
	if got := counterValue(t, metrics.fetchShared.WithLabelValues("orders")); got != 1.0 {
		t.Errorf("expected 1 shared fetch, got %f", got)
	}
	if got := counterValue(t, metrics.persistFailure.WithLabelValues("orders")); got != 1.0 {
		t.Errorf("expected 1 persist failure, got %f", got)
	}
}

func TestOutboxMetricsBacklog(t *testing.T) {
	m := NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m.SetBacklog(3, now.Add(-90*time.Second), now)
	if got := counterValue(t, m.pending); got != 3 {
		t.Fatalf("pending = %v, want 3", got)
	}
	if got := counterValue(t, m.oldestAge); got != 90 {
		t.Fatalf("oldest age = %v, want 90", got)
	}

	m.SetBacklog(0, time.Time{}, now)
	if got := counterValue(t, m.oldestAge); got != 0 {
		t.Fatalf("oldest age = %v, want 0", got)
	}

	m.RecordPublish(PublishResultSent)
	m.RecordPublish(PublishResultSent)
	if got := counterValue(t, m.publishAttempts.WithLabelValues(PublishResultSent)); got != 2 {
		t.Fatalf("sent = %v, want 2", got)
	}
}

func TestOutboxMetricsToleratesDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewOutboxMetricsWithRegisterer(reg)
	second := NewOutboxMetricsWithRegisterer(reg)

	first.RecordPublish(PublishResultFailed)
	if got := counterValue(t, second.publishAttempts.WithLabelValues(PublishResultFailed)); got != 1 {
		t.Fatalf("shared counter = %v, want 1", got)
	}
}

func TestCacheMetricsRecordRun(t *testing.T) {
	m := NewCacheMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordRun(JanitorRunOK, 4)
	m.RecordRun(JanitorRunOK, 2)
	m.RecordRun(JanitorRunError, 10)

	if got := counterValue(t, m.evicted); got != 6 {
		t.Fatalf("evicted = %v, want 6", got)
	}
	if got := counterValue(t, m.lastEvicted); got != 2 {
		t.Fatalf("last evicted = %v, want 2", got)
	}
	if got := counterValue(t, m.janitorRuns.WithLabelValues(JanitorRunError)); got != 1 {
		t.Fatalf("error runs = %v, want 1", got)
	}
}
