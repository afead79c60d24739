package metrics

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for lms_auth_attempts_total.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

// Metrics is safe to use through a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal *prometheus.CounterVec
	AuthAttemptsTotal *prometheus.CounterVec
	AuthzDenialsTotal *prometheus.CounterVec
	RateLimitedTotal  *prometheus.CounterVec
	ResetTokensPurged prometheus.Counter
}

// NewMetrics registers the service collectors plus the Go runtime and
// process collectors on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lms_http_requests_total",
				Help: "Total number of HTTP requests by route pattern",
			},
			[]string{"method", "route", "status"},
		),
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lms_auth_attempts_total",
				Help: "Authentication flow attempts by flow and outcome",
			},
			[]string{"flow", "outcome"},
		),
		AuthzDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lms_authz_denials_total",
				Help: "Requests refused by role-based authorization",
			},
			[]string{"role"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lms_rate_limited_total",
				Help: "Requests rejected by a rate limiter",
			},
			[]string{"limiter"},
		),
		ResetTokensPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lms_reset_tokens_purged_total",
				Help: "Expired password reset tokens cleared by housekeeping",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.AuthAttemptsTotal,
		m.AuthzDenialsTotal,
		m.RateLimitedTotal,
		m.ResetTokensPurged,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) AuthAttempt(flow, outcome string) {
	if m == nil {
		return
	}
	m.AuthAttemptsTotal.WithLabelValues(flow, outcome).Inc()
}

func (m *Metrics) AuthzDenied(role string) {
	if m == nil {
		return
	}
	m.AuthzDenialsTotal.WithLabelValues(role).Inc()
}

func (m *Metrics) RateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(limiter).Inc()
}

func (m *Metrics) ResetTokensPurgedAdd(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ResetTokensPurged.Add(float64(n))
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts requests by chi route pattern so path parameters do not
// explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
