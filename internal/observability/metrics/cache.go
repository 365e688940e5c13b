package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics counts embedding cache lookups.
type CacheMetrics struct {
	service string
	lookups *prometheus.CounterVec
}

func NewCacheMetrics(service string, reg prometheus.Registerer) *CacheMetrics {
	lookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding_cache",
			Name:      "lookups_total",
			Help:      "Embedding cache lookups by result.",
		},
		[]string{"service", "result"},
	)
	reg.MustRegister(lookups)
	return &CacheMetrics{service: service, lookups: lookups}
}

func (m *CacheMetrics) ObserveEmbeddingCache(hits, misses int) {
	if hits > 0 {
		m.lookups.WithLabelValues(m.service, "hit").Add(float64(hits))
	}
	if misses > 0 {
		m.lookups.WithLabelValues(m.service, "miss").Add(float64(misses))
	}
}
