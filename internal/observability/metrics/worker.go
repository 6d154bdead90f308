package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	articlesIndexed *prometheus.CounterVec
	queueLag        *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lawsearch",
			Subsystem: "ingest",
			Name:      "law_process_total",
			Help:      "Total processed laws by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lawsearch",
			Subsystem: "ingest",
			Name:      "law_process_duration_seconds",
			Help:      "Law processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lawsearch",
			Subsystem: "ingest",
			Name:      "law_process_in_flight",
			Help:      "Number of in-flight law processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	articlesIndexed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lawsearch",
			Subsystem: "ingest",
			Name:      "articles_indexed_total",
			Help:      "Total articles written to the vector and graph indexes.",
		},
		[]string{"service"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lawsearch",
			Subsystem: "ingest",
			Name:      "queue_lag_seconds",
			Help:      "Delay between law fetch and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, articlesIndexed, queueLag)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		articlesIndexed: articlesIndexed,
		queueLag:        queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartLaw() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishLaw(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) AddIndexedArticles(service string, n int) {
	if n <= 0 {
		return
	}
	m.articlesIndexed.WithLabelValues(service).Add(float64(n))
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
