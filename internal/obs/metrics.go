package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authzDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization decisions by outcome and reason.",
		},
		[]string{"allow", "reason"},
	)

	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Billing webhook deliveries by reconciliation outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers all service metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		authzDecisionsTotal,
		webhookEventsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAuthzDecision counts one authorization decision.
func ObserveAuthzDecision(allow bool, reason string) {
	authzDecisionsTotal.WithLabelValues(strconv.FormatBool(allow), reason).Inc()
}

// ObserveWebhookEvent counts one webhook reconciliation outcome
// (applied, stale, unknown_type, unknown_user, rejected).
func ObserveWebhookEvent(outcome string) {
	webhookEventsTotal.WithLabelValues(outcome).Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers so metric label cardinality
// stays bounded regardless of how many projects or users exist.
func CanonicalPath(raw string) string {
	path := raw
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if path == "" {
		return "/"
	}

	switch {
	case strings.HasPrefix(path, "/public/"):
		rest := strings.Trim(strings.TrimPrefix(path, "/public/"), "/")
		if rest != "" && !strings.Contains(rest, "/") {
			return "/public/:id"
		}
	case strings.HasPrefix(path, "/v1/projects/"):
		rest := strings.Trim(strings.TrimPrefix(path, "/v1/projects/"), "/")
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1 && parts[0] != "":
			return "/v1/projects/:id"
		case len(parts) == 2 && parts[1] == "incidents":
			return "/v1/projects/:id/incidents"
		}
	case strings.HasPrefix(path, "/v1/groups/"):
		rest := strings.Trim(strings.TrimPrefix(path, "/v1/groups/"), "/")
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1 && parts[0] != "":
			return "/v1/groups/:id"
		case len(parts) == 2 && parts[1] == "members":
			return "/v1/groups/:id/members"
		case len(parts) == 4 && parts[1] == "members" && parts[3] == "remove":
			return "/v1/groups/:id/members/:user_id/remove"
		}
	case strings.HasPrefix(path, "/v1/incidents/"):
		rest := strings.Trim(strings.TrimPrefix(path, "/v1/incidents/"), "/")
		parts := strings.Split(rest, "/")
		if len(parts) == 2 && parts[1] == "resolve" {
			return "/v1/incidents/:id/resolve"
		}
	case strings.HasPrefix(path, "/v1/admin/users/"):
		rest := strings.Trim(strings.TrimPrefix(path, "/v1/admin/users/"), "/")
		parts := strings.Split(rest, "/")
		if len(parts) == 2 && (parts[1] == "promote" || parts[1] == "deactivate") {
			return "/v1/admin/users/:id/" + parts[1]
		}
	}
	return path
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
