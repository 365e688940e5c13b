package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/medlit-rag/internal/core/ports"
)

// PipelineMetrics records monitored query pipeline calls.
type PipelineMetrics struct {
	service string

	duration     *prometheus.HistogramVec
	failures     *prometheus.CounterVec
	successRatio prometheus.Gauge
	sources      *prometheus.HistogramVec
}

var _ ports.PipelineMetrics = (*PipelineMetrics)(nil)

func NewPipelineMetrics(service string, reg prometheus.Registerer) *PipelineMetrics {
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "End-to-end pipeline latency by search type and outcome.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "search_type", "outcome"},
	)
	failures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "failures_total",
			Help:      "Pipeline failures by stage.",
		},
		[]string{"service", "stage"},
	)
	successRatio := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "success_ratio",
			Help:        "Share of pipeline calls that completed without error.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	sources := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "retrieved_documents",
			Help:      "Documents passed to generation per successful call.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "search_type"},
	)

	reg.MustRegister(duration, failures, successRatio, sources)

	return &PipelineMetrics{
		service:      service,
		duration:     duration,
		failures:     failures,
		successRatio: successRatio,
		sources:      sources,
	}
}

func (m *PipelineMetrics) ObservePipeline(obs ports.PipelineObservation) {
	searchType := string(obs.SearchType)
	if searchType == "" {
		searchType = "unknown"
	}
	outcome := obs.Outcome
	if outcome == "" {
		outcome = "unknown"
	}
	m.duration.WithLabelValues(m.service, searchType, outcome).Observe(obs.Duration.Seconds())
	if obs.Stage != "" {
		m.failures.WithLabelValues(m.service, string(obs.Stage)).Inc()
		return
	}
	m.sources.WithLabelValues(m.service, searchType).Observe(float64(obs.Sources))
}

func (m *PipelineMetrics) SetSuccessRatio(ratio float64) {
	m.successRatio.Set(ratio)
}
