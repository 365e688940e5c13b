package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// BreakerMetrics exports circuit breaker states: 0 closed, 1 half-open, 2 open.
type BreakerMetrics struct {
	service string
	state   *prometheus.GaugeVec
	trips   *prometheus.CounterVec
}

func NewBreakerMetrics(service string, reg prometheus.Registerer) *BreakerMetrics {
	m := &BreakerMetrics{
		service: service,
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state per downstream operation (0 closed, 1 half-open, 2 open).",
		}, []string{"service", "operation"}),
		trips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "trips_total",
			Help:      "Transitions into the open state.",
		}, []string{"service", "operation"}),
	}
	reg.MustRegister(m.state, m.trips)
	return m
}

func (m *BreakerMetrics) ObserveBreaker(operation string, _, to gobreaker.State) {
	m.state.WithLabelValues(m.service, operation).Set(float64(to))
	if to == gobreaker.StateOpen {
		m.trips.WithLabelValues(m.service, operation).Inc()
	}
}
