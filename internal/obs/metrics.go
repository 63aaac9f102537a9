package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
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
)

// Auth flow metrics. Result labels carry the coarse outcome, never token
// values or emails.
var (
	loginRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_login_requests_total",
		Help: "Magic-link login requests accepted (registered or not).",
	})

	verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_magic_link_verifications_total",
			Help: "Magic-link verification attempts by result.",
		},
		[]string{"result"},
	)

	exchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_exchanges_total",
			Help: "Exchange-token redemptions by result.",
		},
		[]string{"result"},
	)

	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_session_resolutions_total",
			Help: "Session credential resolutions by result.",
		},
		[]string{"result"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginRequestsTotal, verificationsTotal, exchangesTotal, resolutionsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLoginRequest counts an accepted login request.
func ObserveLoginRequest() { loginRequestsTotal.Inc() }

// ObserveVerification counts a magic-link verification outcome.
func ObserveVerification(result string) { verificationsTotal.WithLabelValues(result).Inc() }

// ObserveExchange counts an exchange redemption outcome.
func ObserveExchange(result string) { exchangesTotal.WithLabelValues(result).Inc() }

// ObserveResolution counts a session resolution outcome.
func ObserveResolution(result string) { resolutionsTotal.WithLabelValues(result).Inc() }

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
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

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
