package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	recomputesTotal *prometheus.CounterVec
	conflictRetries prometheus.Counter
	integrityErrors prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meetledger_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meetledger_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	recomputes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meetledger_ledger_recomputes_total",
		Help: "Daily balance recomputations by trigger and outcome.",
	}, []string{"trigger", "outcome"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meetledger_ledger_conflict_retries_total",
		Help: "Recompute transactions retried after isolation conflicts.",
	})
	integrity := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meetledger_ledger_integrity_errors_total",
		Help: "Meetings found referencing a missing owner client.",
	})
	registry.MustRegister(requests, duration, recomputes, conflicts, integrity)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		recomputesTotal: recomputes,
		conflictRetries: conflicts,
		integrityErrors: integrity,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for each HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveRecompute counts one recompute invocation.
func (m *Metrics) ObserveRecompute(trigger string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.recomputesTotal.WithLabelValues(trigger, outcome).Inc()
}

// AddConflictRetry counts a transaction retried after a serialization conflict.
func (m *Metrics) AddConflictRetry() {
	if m == nil {
		return
	}
	m.conflictRetries.Inc()
}

// AddIntegrityError counts a dangling meeting-to-client reference.
func (m *Metrics) AddIntegrityError() {
	if m == nil {
		return
	}
	m.integrityErrors.Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
