// Package metrics provides Prometheus instrumentation for the escrow engine.
package metrics

import (
	"database/sql"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gigvault",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gigvault",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// PaymentTransitionsTotal counts committed payment transitions by
	// resulting status.
	PaymentTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gigvault",
			Name:      "payment_transitions_total",
			Help:      "Total committed payment state transitions by resulting status.",
		},
		[]string{"status"},
	)

	// GatewayCallsTotal counts payment-provider calls by operation and result.
	GatewayCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gigvault",
			Name:      "gateway_calls_total",
			Help:      "Total payment gateway calls by operation and result.",
		},
		[]string{"op", "result"},
	)

	// DisputeResolutionsTotal counts dispute resolutions by kind.
	DisputeResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gigvault",
			Name:      "dispute_resolutions_total",
			Help:      "Total dispute resolutions by resolution kind.",
		},
		[]string{"resolution"},
	)

	// DBOpenConnections gauges the connection pool.
	DBOpenConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gigvault",
			Name:      "db_open_connections",
			Help:      "Open database connections.",
		},
	)
)

// Register registers all collectors with the default registry.
// Call once at startup.
func Register() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PaymentTransitionsTotal,
		GatewayCallsTotal,
		DisputeResolutionsTotal,
		DBOpenConnections,
	)
}

// Handler returns the /metrics endpoint handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware instruments each request with count and latency. Uses the
// route pattern, not the raw URL, to keep label cardinality bounded.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := statusLabel(c.Writer.Status())
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).
			Observe(time.Since(start).Seconds())
	}
}

// ObservePaymentTransition records a committed payment transition.
func ObservePaymentTransition(status string) {
	PaymentTransitionsTotal.WithLabelValues(status).Inc()
}

// ObserveGatewayCall records a gateway call outcome.
func ObserveGatewayCall(op string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	GatewayCallsTotal.WithLabelValues(op, result).Inc()
}

// ObserveDisputeResolution records a dispute resolution by kind.
func ObserveDisputeResolution(resolution string) {
	DisputeResolutionsTotal.WithLabelValues(resolution).Inc()
}

// WatchDBPool samples connection-pool stats until stop is closed.
func WatchDBPool(db *sql.DB, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		case <-stop:
			return
		}
	}
}

func statusLabel(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
