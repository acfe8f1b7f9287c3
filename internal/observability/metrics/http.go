package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"
)

const namespace = "admissions_rag"

var knownPaths = map[string]bool{
	"/healthz":        true,
	"/metrics":        true,
	"/openapi.yaml":   true,
	"/v1/chat":        true,
	"/v1/chat/stream": true,
	"/v1/categories":  true,
	"/v1/rag/log":     true,
}

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	ragRequestsTotal       *prometheus.CounterVec
	ragExternalSearchTotal *prometheus.CounterVec
	ragNoLocalTotal        *prometheus.CounterVec
	ragOutOfScopeTotal     *prometheus.CounterVec
	ragSources             *prometheus.HistogramVec
	ragDuration            *prometheus.HistogramVec
	retrievalAttemptsTotal *prometheus.CounterVec
	breakerState           *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	ragRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "requests_total",
			Help:      "Answered queries by detected category.",
		},
		[]string{"service", "endpoint", "category"},
	)
	ragExternalSearchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "external_search_total",
			Help:      "Answers that used external search, by trigger.",
		},
		[]string{"service", "endpoint", "trigger"},
	)
	ragNoLocalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "no_local_evidence_total",
			Help:      "Answers built without any local record or document.",
		},
		[]string{"service", "endpoint", "category"},
	)
	ragOutOfScopeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "out_of_scope_total",
			Help:      "Queries answered with the out-of-scope redirect.",
		},
		[]string{"service", "endpoint"},
	)
	ragSources := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "sources",
			Help:      "Retrieved documents per answered query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"service", "endpoint"},
	)
	ragDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "duration_seconds",
			Help:      "End-to-end answer duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"service", "endpoint"},
	)
	retrievalAttemptsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "attempts_total",
			Help:      "Retrieval attempts by attempt number and relevance verdict.",
		},
		[]string{"service", "attempt", "verdict"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		ragRequestsTotal,
		ragExternalSearchTotal,
		ragNoLocalTotal,
		ragOutOfScopeTotal,
		ragSources,
		ragDuration,
		retrievalAttemptsTotal,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:               registry,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		ragRequestsTotal:       ragRequestsTotal,
		ragExternalSearchTotal: ragExternalSearchTotal,
		ragNoLocalTotal:        ragNoLocalTotal,
		ragOutOfScopeTotal:     ragOutOfScopeTotal,
		ragSources:             ragSources,
		ragDuration:            ragDuration,
		retrievalAttemptsTotal: retrievalAttemptsTotal,
		breakerState:           breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterCacheSize exports the response cache size, read at scrape time.
func (m *HTTPServerMetrics) RegisterCacheSize(service string, size func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "cache",
			Name:        "entries",
			Help:        "Entries currently held by the response cache.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		size,
	))
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
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
	if knownPaths[path] {
		return path
	}
	return "other"
}

// RAGObservation summarizes one answered query.
type RAGObservation struct {
	Category         string
	Sources          int
	HasLocalEvidence bool
	ExternalSearch   bool
	AutoEscalated    bool
	OutOfScope       bool
	Duration         time.Duration
}

func (m *HTTPServerMetrics) RecordRAGObservation(service, endpoint string, obs RAGObservation) {
	category := obs.Category
	if category == "" {
		category = "unknown"
	}
	m.ragRequestsTotal.WithLabelValues(service, endpoint, category).Inc()
	m.ragSources.WithLabelValues(service, endpoint).Observe(float64(obs.Sources))
	m.ragDuration.WithLabelValues(service, endpoint).Observe(obs.Duration.Seconds())

	if !obs.HasLocalEvidence {
		m.ragNoLocalTotal.WithLabelValues(service, endpoint, category).Inc()
	}
	if obs.OutOfScope {
		m.ragOutOfScopeTotal.WithLabelValues(service, endpoint).Inc()
	}
	switch {
	case obs.AutoEscalated:
		m.ragExternalSearchTotal.WithLabelValues(service, endpoint, "escalated").Inc()
	case obs.ExternalSearch:
		m.ragExternalSearchTotal.WithLabelValues(service, endpoint, "requested").Inc()
	}
}

func (m *HTTPServerMetrics) RecordRetrievalAttempt(service string, attempt int, verdict string) {
	if verdict == "" {
		verdict = "unknown"
	}
	m.retrievalAttemptsTotal.WithLabelValues(service, strconv.Itoa(attempt), verdict).Inc()
}

// RecordBreakerState matches resilience.StateObserver once bound to a service.
func (m *HTTPServerMetrics) RecordBreakerState(service, operation string, to gobreaker.State) {
	m.breakerState.WithLabelValues(service, operation).Set(float64(to))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
