package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты загрузки ресурса для метки result.
const (
	LoadResultCache     = "cache"
	LoadResultRefreshed = "refreshed"
	LoadResultStale     = "stale"
	LoadResultFailed    = "failed"
)

// SyncMetrics содержит метрики ядра синхронизации.
type SyncMetrics struct {
	// Оркестратор cache-then-network
	loads          *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	fetchShared    *prometheus.CounterVec
	inflightFetch  prometheus.Gauge
	persistFailure *prometheus.CounterVec

	// Локальная корзина
	cartMutations *prometheus.CounterVec
	cartItems     prometheus.Gauge

	// Жизненный цикл заказа
	transitions      *prometheus.CounterVec
	transitionDenied *prometheus.CounterVec
	ordersCreated    prometheus.Counter
}

// NewSyncMetrics создаёт метрики в глобальном регистре Prometheus.
func NewSyncMetrics() *SyncMetrics {
	return NewSyncMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSyncMetricsWithRegisterer создаёт метрики в переданном регистре (изолированные тесты).
func NewSyncMetricsWithRegisterer(registerer prometheus.Registerer) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SyncMetrics{
		loads: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_sync_loads_total",
			Help: "Total number of cache-then-network loads grouped by resource kind and result",
		}, []string{"kind", "result"}),
		fetchDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_sync_fetch_duration_seconds",
			Help:    "Duration of remote fetches in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"kind"}),
		fetchShared: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_sync_fetch_dedup_shared_total",
			Help: "Total number of loads that reused an in-flight fetch of the same resource",
		}, []string{"kind"}),
		inflightFetch: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_sync_inflight_fetches",
			Help: "Number of remote fetches currently in flight",
		}),
		persistFailure: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_sync_persist_failures_total",
			Help: "Total number of failed write-through operations into the local cache",
		}, []string{"kind"}),
		cartMutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Total number of local cart mutations grouped by operation",
		}, []string{"op"}),
		cartItems: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_cart_items",
			Help: "Sum of quantities across cart lines after the last mutation",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Total number of applied order status transitions",
		}, []string{"from", "to"}),
		transitionDenied: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_transitions_rejected_total",
			Help: "Total number of order status transitions rejected by the lifecycle table",
		}, []string{"from", "to"}),
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_created_total",
			Help: "Total number of orders created at checkout",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordLoad увеличивает счётчик загрузок ресурса kind с результатом result.
func (m *SyncMetrics) RecordLoad(kind, result string) {
	m.loads.WithLabelValues(kind, result).Inc()
}

// RecordFetchStarted увеличивает количество сетевых запросов в полёте.
func (m *SyncMetrics) RecordFetchStarted() {
	m.inflightFetch.Inc()
}

// RecordFetchFinished уменьшает количество запросов в полёте и пишет длительность.
func (m *SyncMetrics) RecordFetchFinished(kind string, duration time.Duration) {
	m.inflightFetch.Dec()
	m.fetchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordFetchShared отмечает загрузку, получившую результат чужого запроса.
func (m *SyncMetrics) RecordFetchShared(kind string) {
	m.fetchShared.WithLabelValues(kind).Inc()
}

// RecordPersistFailure отмечает неудачную запись в локальный кэш.
func (m *SyncMetrics) RecordPersistFailure(kind string) {
	m.persistFailure.WithLabelValues(kind).Inc()
}

// RecordCartMutation отмечает мутацию корзины и актуальное число единиц товара.
func (m *SyncMetrics) RecordCartMutation(op string, itemCount int) {
	m.cartMutations.WithLabelValues(op).Inc()
	m.cartItems.Set(float64(itemCount))
}

// RecordTransition отмечает применённый переход статуса.
func (m *SyncMetrics) RecordTransition(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordTransitionRejected отмечает отклонённый переход статуса.
func (m *SyncMetrics) RecordTransitionRejected(from, to string) {
	m.transitionDenied.WithLabelValues(from, to).Inc()
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *SyncMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}
