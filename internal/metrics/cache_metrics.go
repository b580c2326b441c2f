package metrics

import "github.com/prometheus/client_golang/prometheus"

// Результаты прохода очистки кэша.
const (
	JanitorRunOK    = "ok"
	JanitorRunError = "error"
)

// CacheMetrics — метрики очистки локального кэша.
type CacheMetrics struct {
	janitorRuns *prometheus.CounterVec
	evicted     prometheus.Counter
	lastEvicted prometheus.Gauge
}

// NewCacheMetrics создаёт метрики в глобальном регистре.
func NewCacheMetrics() *CacheMetrics {
	return NewCacheMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCacheMetricsWithRegisterer создаёт метрики в переданном регистре.
func NewCacheMetricsWithRegisterer(registerer prometheus.Registerer) *CacheMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &CacheMetrics{
		janitorRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cache_janitor_runs_total",
			Help: "Total number of cache janitor runs grouped by result.",
		}, []string{"result"}),
		evicted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_cache_evicted_total",
			Help: "Total number of cache entries evicted by retention.",
		}),
		lastEvicted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_cache_janitor_last_evicted",
			Help: "Number of entries evicted during the last janitor run.",
		}),
	}
}

// RecordRun отмечает проход очистки; evicted учитывается только при успехе.
func (m *CacheMetrics) RecordRun(result string, evicted int) {
	m.janitorRuns.WithLabelValues(result).Inc()
	if result != JanitorRunOK {
		return
	}
	m.evicted.Add(float64(evicted))
	m.lastEvicted.Set(float64(evicted))
}
