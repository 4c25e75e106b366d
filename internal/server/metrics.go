package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's collectors on a private registry.
type Metrics struct {
	Registry       *prometheus.Registry
	Requests       *prometheus.CounterVec
	Duration       *prometheus.HistogramVec
	SecurityEvents *prometheus.CounterVec
	Purged         prometheus.Counter
}

// NewMetrics registers the request, security and session collectors. activeSessions, when
// set, backs the ytgate_sessions_active gauge and is called on every scrape.
func NewMetrics(activeSessions func() float64) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ytgate_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ytgate_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		SecurityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ytgate_security_events_total",
			Help: "Gate rejections and session lifecycle events by type.",
		}, []string{"event"}),
		Purged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ytgate_sessions_purged_total",
			Help: "Expired sessions deleted by the maintenance loop.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Requests, m.Duration, m.SecurityEvents, m.Purged,
	)

	if activeSessions != nil {
		m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ytgate_sessions_active",
			Help: "Sessions that can still authenticate.",
		}, activeSessions))
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware observes every request. Unmatched paths share one route label.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		route := routeLabel(r.URL.Path)
		m.Requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.Duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ActiveSessionsFunc adapts a context-taking counter for [NewMetrics].
func ActiveSessionsFunc(count func(context.Context) (int64, error)) func() float64 {
	return func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := count(ctx)
		if err != nil {
			return 0
		}
		return float64(n)
	}
}

// routeLabel keeps label cardinality bounded by collapsing proxied paths.
func routeLabel(path string) string {
	switch {
	case path == "/health", path == "/metrics", authRoutes[path]:
		return path
	case strings.HasPrefix(path, "/api/"):
		return "/api"
	default:
		return "other"
	}
}
