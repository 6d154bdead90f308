package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchRequestsTotal *prometheus.CounterVec
	backendStatusTotal  *prometheus.CounterVec
	backendDuration     *prometheus.HistogramVec
	degradedTotal       *prometheus.CounterVec
	fusedResults        *prometheus.HistogramVec
	searchDuration      *prometheus.HistogramVec
	answersTotal        *prometheus.CounterVec
	citationsDropped    prometheus.Counter
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lawsearch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lawsearch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lawsearch",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lawsearch",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total completed hybrid search requests by outcome.",
		},
		[]string{"service", "endpoint", "outcome"},
	)
	backendStatusTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lawsearch",
			Subsystem: "search",
			Name:      "backend_status_total",
			Help:      "Per-backend fan-out completions by terminal state.",
		},
		[]string{"service", "backend", "state"},
	)
	backendDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lawsearch",
			Subsystem: "search",
			Name:      "backend_duration_seconds",
			Help:      "Per-backend retrieval duration in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		},
		[]string{"service", "backend"},
	)
	degradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lawsearch",
			Subsystem: "search",
			Name:      "degraded_total",
			Help:      "Search requests served with at least one failed backend.",
		},
		[]string{"service", "backend"},
	)
	fusedResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lawsearch",
			Subsystem: "search",
			Name:      "fused_results",
			Help:      "Distribution of fused result counts per request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
		[]string{"service", "endpoint"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lawsearch",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "End-to-end search duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	answersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lawsearch",
			Subsystem: "answer",
			Name:      "requests_total",
			Help:      "Total answer synthesis attempts by status.",
		},
		[]string{"service", "model", "status"},
	)
	citationsDropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lawsearch",
			Subsystem: "answer",
			Name:      "citations_dropped_total",
			Help:      "Citations discarded because they referenced no retrieved passage.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchRequestsTotal,
		backendStatusTotal,
		backendDuration,
		degradedTotal,
		fusedResults,
		searchDuration,
		answersTotal,
		citationsDropped,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		searchRequestsTotal: searchRequestsTotal,
		backendStatusTotal:  backendStatusTotal,
		backendDuration:     backendDuration,
		degradedTotal:       degradedTotal,
		fusedResults:        fusedResults,
		searchDuration:      searchDuration,
		answersTotal:        answersTotal,
		citationsDropped:    citationsDropped,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &metricsRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/laws/") && strings.HasSuffix(path, "/fetch"):
		return "/v1/laws/{law_id}/fetch"
	case strings.HasPrefix(path, "/v1/laws/") && strings.Contains(path, "/articles/"):
		return "/v1/laws/{law_id}/articles/{number}"
	case strings.HasPrefix(path, "/v1/laws/"):
		return "/v1/laws/{law_id}"
	default:
		return path
	}
}

// RecordSearch captures the per-request fusion outcome. Backends holds the
// terminal state and duration of each fan-out branch.
func (m *HTTPServerMetrics) RecordSearch(service, endpoint, outcome string, fused int, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.searchRequestsTotal.WithLabelValues(service, endpoint, outcome).Inc()
	m.fusedResults.WithLabelValues(service, endpoint).Observe(float64(fused))
	m.searchDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordBackend(service, backend, state string, took time.Duration) {
	if state == "" {
		state = "unknown"
	}
	m.backendStatusTotal.WithLabelValues(service, backend, state).Inc()
	m.backendDuration.WithLabelValues(service, backend).Observe(took.Seconds())
}

func (m *HTTPServerMetrics) RecordDegraded(service, backend string) {
	m.degradedTotal.WithLabelValues(service, backend).Inc()
}

func (m *HTTPServerMetrics) RecordAnswer(service, model, status string) {
	if model == "" {
		model = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.answersTotal.WithLabelValues(service, model, status).Inc()
}

func (m *HTTPServerMetrics) RecordDroppedCitations(n int) {
	if n <= 0 {
		return
	}
	m.citationsDropped.Add(float64(n))
}

type metricsRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *metricsRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *metricsRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *metricsRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *metricsRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
