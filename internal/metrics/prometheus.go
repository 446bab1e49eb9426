// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LockOperations tracks lock manager decisions by operation and result.
	LockOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "article_lock_operations_total",
			Help: "Total article lock operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	// ArticleUpdates tracks article update attempts by result.
	ArticleUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "article_updates_total",
			Help: "Total article update attempts by result",
		},
		[]string{"result"},
	)

	// ArticleUpdateDuration tracks end-to-end article update duration.
	ArticleUpdateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "article_update_duration_seconds",
			Help:    "Article update duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// HTTPRequestsTotal tracks total HTTP requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DatabaseQueryDuration tracks database query duration.
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// CacheHits tracks cache hit/miss ratio.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Total cache operations by type (hit/miss)",
		},
		[]string{"cache", "result"},
	)
)

// RegisterMetricsEndpoint registers the /metrics endpoint on a Gin router.
func RegisterMetricsEndpoint(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// HTTPMiddleware records request counts and latency per route template.
func HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		RecordHTTPRequest(method, path, strconv.Itoa(c.Writer.Status()))
		RecordHTTPRequestDuration(method, path, time.Since(start).Seconds())
	}
}

// RecordLockOperation records a lock manager decision.
func RecordLockOperation(operation, result string) {
	LockOperations.WithLabelValues(operation, result).Inc()
}

// RecordArticleUpdate records an article update attempt and its duration.
func RecordArticleUpdate(result string, seconds float64) {
	ArticleUpdates.WithLabelValues(result).Inc()
	ArticleUpdateDuration.Observe(seconds)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, path, status string) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(method, path string, seconds float64) {
	HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// RecordDatabaseQuery records a database query duration.
func RecordDatabaseQuery(operation string, seconds float64) {
	DatabaseQueryDuration.WithLabelValues(operation).Observe(seconds)
}

// ObserveDatabaseQuery records the time elapsed since start. Use with defer.
func ObserveDatabaseQuery(operation string, start time.Time) {
	RecordDatabaseQuery(operation, time.Since(start).Seconds())
}

// RecordCacheOperation records a cache operation.
func RecordCacheOperation(cache, result string) {
	CacheHits.WithLabelValues(cache, result).Inc()
}
