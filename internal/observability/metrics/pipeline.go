package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics implements ports.PipelineObserver on top of prometheus collectors.
type PipelineMetrics struct {
	service string

	stageDuration   *prometheus.HistogramVec
	routesTotal     *prometheus.CounterVec
	indexTotal      *prometheus.CounterVec
	rerankFallbacks *prometheus.CounterVec
	resultSize      *prometheus.HistogramVec
	noResultTotal   *prometheus.CounterVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rfp",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service", "stage"},
	)
	routesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfp",
			Subsystem: "pipeline",
			Name:      "routes_total",
			Help:      "Total routed indices by origin.",
		},
		[]string{"service", "index", "origin"},
	)
	indexTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfp",
			Subsystem: "pipeline",
			Name:      "index_retrievals_total",
			Help:      "Total per-index retrievals by status.",
		},
		[]string{"service", "index", "status"},
	)
	rerankFallbacks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfp",
			Subsystem: "pipeline",
			Name:      "rerank_fallback_total",
			Help:      "Total requests served in fused order after a rerank failure.",
		},
		[]string{"service"},
	)
	resultSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rfp",
			Subsystem: "pipeline",
			Name:      "result_candidates",
			Help:      "Distribution of returned candidates per request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	noResultTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfp",
			Subsystem: "pipeline",
			Name:      "no_result_total",
			Help:      "Total requests that returned no candidates.",
		},
		[]string{"service"},
	)

	registerer.MustRegister(stageDuration, routesTotal, indexTotal, rerankFallbacks, resultSize, noResultTotal)

	return &PipelineMetrics{
		service:         service,
		stageDuration:   stageDuration,
		routesTotal:     routesTotal,
		indexTotal:      indexTotal,
		rerankFallbacks: rerankFallbacks,
		resultSize:      resultSize,
		noResultTotal:   noResultTotal,
	}
}

func (m *PipelineMetrics) ObserveStage(stage string, seconds float64) {
	if stage == "" {
		stage = "unknown"
	}
	m.stageDuration.WithLabelValues(m.service, stage).Observe(seconds)
}

func (m *PipelineMetrics) ObserveRoute(index string, matchedDomain bool) {
	origin := "default"
	if matchedDomain {
		origin = "domain"
	}
	m.routesTotal.WithLabelValues(m.service, index, origin).Inc()
}

func (m *PipelineMetrics) ObserveIndexOutcome(index string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.indexTotal.WithLabelValues(m.service, index, status).Inc()
}

func (m *PipelineMetrics) ObserveRerankFallback() {
	m.rerankFallbacks.WithLabelValues(m.service).Inc()
}

func (m *PipelineMetrics) ObserveResult(candidates int) {
	m.resultSize.WithLabelValues(m.service).Observe(float64(candidates))
	if candidates == 0 {
		m.noResultTotal.WithLabelValues(m.service).Inc()
	}
}
