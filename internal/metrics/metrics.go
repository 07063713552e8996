package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP requests by route, method and status."},
		[]string{"path", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request latency in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"path", "method"},
	)
	// Loans counts lending transitions; action is borrow or return.
	Loans = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "library_loans_total", Help: "Successful borrow and return operations."},
		[]string{"action"},
	)
	TokensIssued = prometheus.NewCounter(prometheus.CounterOpts{Name: "library_tokens_issued_total", Help: "Access tokens issued."})
	Exports      = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "library_catalog_exports_total", Help: "Catalog export runs by result."},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPLatency, Loans, TokensIssued, Exports)
}

// Handler records request count and latency per matched route.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		dur := time.Since(start).Seconds()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPLatency.WithLabelValues(path, c.Request.Method).Observe(dur)
		HTTPRequests.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Exposer serves the default registry.
func Exposer() gin.HandlerFunc { return gin.WrapH(promhttp.Handler()) }
