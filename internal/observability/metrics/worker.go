package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics tracks retrieval requests served from the message bus.
type WorkerMetrics struct {
	registry *prometheus.Registry
	pipeline *PipelineMetrics

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfp",
			Subsystem: "worker",
			Name:      "requests_total",
			Help:      "Total bus retrieval requests by status.",
		},
		[]string{"service", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rfp",
			Subsystem: "worker",
			Name:      "request_duration_seconds",
			Help:      "Bus retrieval request duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rfp",
			Subsystem: "worker",
			Name:      "requests_in_flight",
			Help:      "Number of in-flight bus retrieval requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(requestTotal, requestDuration, requestInFlight)

	return &WorkerMetrics{
		registry:        registry,
		pipeline:        NewPipelineMetrics(service, registry),
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) Pipeline() *PipelineMetrics {
	return m.pipeline
}

func (m *WorkerMetrics) StartRequest() {
	m.requestInFlight.Inc()
}

func (m *WorkerMetrics) FinishRequest(service string, duration time.Duration, err error) {
	m.requestInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.requestTotal.WithLabelValues(service, status).Inc()
	m.requestDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}
