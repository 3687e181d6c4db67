// Package metrics provides Prometheus instrumentation for the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrilock",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agrilock",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// EscrowTransitionsTotal counts escrow state transitions by resulting status.
	EscrowTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrilock",
			Name:      "escrow_transitions_total",
			Help:      "Total escrow state transitions by resulting status.",
		},
		[]string{"status"},
	)

	// LedgerSubmissionsTotal counts XRPL transaction submissions by operation and result.
	LedgerSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrilock",
			Name:      "ledger_submissions_total",
			Help:      "Total XRPL transaction submissions by operation and result.",
		},
		[]string{"operation", "result"},
	)

	// LedgerSubmissionDuration observes XRPL submit-and-wait latency by operation.
	LedgerSubmissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agrilock",
			Name:      "ledger_submission_duration_seconds",
			Help:      "XRPL submit-and-wait duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 30, 60},
		},
		[]string{"operation"},
	)

	// VerificationsTotal counts verification attempts by practice type and outcome.
	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrilock",
			Name:      "verifications_total",
			Help:      "Total practice verification attempts by practice type and outcome.",
		},
		[]string{"practice", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EscrowTransitionsTotal,
		LedgerSubmissionsTotal,
		LedgerSubmissionDuration,
		VerificationsTotal,
	)
}

// Middleware records request counts and latency per route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// FullPath is the route pattern (e.g. /v1/escrows/:id), which keeps
		// label cardinality bounded. Unmatched routes report as "unmatched".
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
		).Inc()
		HTTPRequestDuration.WithLabelValues(
			c.Request.Method, path,
		).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// ObserveLedgerSubmission records one XRPL submission outcome with its duration.
func ObserveLedgerSubmission(operation, result string, d time.Duration) {
	LedgerSubmissionsTotal.WithLabelValues(operation, result).Inc()
	LedgerSubmissionDuration.WithLabelValues(operation).Observe(d.Seconds())
}
