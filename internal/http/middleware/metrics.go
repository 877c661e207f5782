// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for HTTP traffic. Labels are
// kept bounded:
//
//   - method: HTTP method verb
//   - path:   the registered Gin route (e.g. /api/vouchers/:id); falls back
//     to "unmatched" when no route matched
//   - status: numeric status code as a string (e.g. "200", "429")
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedPath labels requests that hit no registered route, so scanners
// cannot blow up label cardinality.
const unmatchedPath = "unmatched"

// HTTPMetrics groups the HTTP collectors. All collectors are safe for
// concurrent use.
type HTTPMetrics struct {
	reqs        *prometheus.CounterVec
	lat         *prometheus.HistogramVec
	inflight    prometheus.Gauge
	respSize    *prometheus.HistogramVec
	rateLimited *prometheus.CounterVec
}

// NewHTTPMetrics builds the collectors and registers them on reg.
// A nil reg leaves them unregistered (useful in tests).
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		reqs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		// Status is omitted to keep histogram cardinality lower.
		lat: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_inflight",
				Help: "Current number of in-flight HTTP requests.",
			},
		),
		respSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_response_size_bytes",
				Help: "Size of HTTP responses in bytes.",
				Buckets: []float64{
					100, 200, 500, 1 << 10, 2 << 10, 5 << 10, // 100B..5KiB
					10 << 10, 25 << 10, 50 << 10, // 10..50KiB
				},
			},
			[]string{"method", "path"},
		),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_rate_limited_total",
				Help: "Requests rejected with 429 by the rate limiter.",
			},
			[]string{"path"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.reqs, m.lat, m.inflight, m.respSize, m.rateLimited)
	}
	return m
}

// Handler returns a Gin middleware that instruments requests.
//
// Usage:
//
//	m := middleware.NewHTTPMetrics(prometheus.DefaultRegisterer)
//	r.Use(m.Handler())
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.inflight.Inc()
		defer m.inflight.Dec()

		c.Next()

		dur := time.Since(start).Seconds()
		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		method := c.Request.Method
		code := c.Writer.Status()

		m.reqs.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
		m.lat.WithLabelValues(method, path).Observe(dur)
		// Size is -1 when nothing was written (e.g. 204).
		if size := c.Writer.Size(); size >= 0 {
			m.respSize.WithLabelValues(method, path).Observe(float64(size))
		}
		if code == http.StatusTooManyRequests {
			m.rateLimited.WithLabelValues(path).Inc()
		}
	}
}
