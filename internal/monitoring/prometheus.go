// Package monitoring provides Prometheus metrics for VAXTRACK-CORE.
//
// Usage:
//
//  1. Expose the scrape endpoint on the router:
//     monitoring.SetupPrometheusMetrics(router)
//
//  2. Add the HTTP metrics middleware:
//     router.Use(monitoring.HTTPMetricsMiddleware())
//
//  3. Record engine metrics where decisions happen:
//     monitoring.RecordDecision(resource, operation, allowed, time.Since(start))
//     monitoring.RecordCacheOperation("decision", "hit")
//     monitoring.RecordIdentityLookup(time.Since(start), err == nil)
package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaxtrack_core_http_requests_total",
			Help: "Total HTTP requests processed",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vaxtrack_core_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaxtrack_core_authz_decisions_total",
			Help: "Permission decisions by outcome",
		},
		[]string{"resource", "operation", "outcome"},
	)

	decisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vaxtrack_core_authz_decision_duration_seconds",
			Help:    "Permission decision latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"resource"},
	)

	cacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaxtrack_core_cache_operations_total",
			Help: "Cache operations by result",
		},
		[]string{"operation", "result"},
	)

	identityLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaxtrack_core_identity_lookups_total",
			Help: "Identity provider lookups",
		},
		[]string{"status"},
	)

	identityLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vaxtrack_core_identity_lookup_duration_seconds",
			Help:    "Identity provider lookup latency",
			Buckets: prometheus.DefBuckets,
		},
	)

	migrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaxtrack_core_permission_migrations_total",
			Help: "Collection permission migrations",
		},
		[]string{"resource", "mode", "status"},
	)
)

// SetupPrometheusMetrics mounts the scrape endpoint.
func SetupPrometheusMetrics(router gin.IRoutes) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// HTTPMetricsMiddleware records request counts and latency per route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		httpRequestsTotal.WithLabelValues(
			c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status()),
		).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).
			Observe(time.Since(start).Seconds())
	}
}

// RecordDecision records a single permission decision.
func RecordDecision(resource, operation string, allowed bool, duration time.Duration) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	decisionsTotal.WithLabelValues(resource, operation, outcome).Inc()
	decisionDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// RecordCacheOperation records a cache interaction, e.g. ("decision", "hit").
func RecordCacheOperation(operation, result string) {
	cacheOperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordIdentityLookup records an identity-provider round trip.
func RecordIdentityLookup(duration time.Duration, success bool) {
	status := "error"
	if success {
		status = "success"
	}
	identityLookupsTotal.WithLabelValues(status).Inc()
	identityLookupDuration.Observe(duration.Seconds())
}

// RecordMigration records a collection permission migration attempt.
func RecordMigration(resource, mode string, success bool) {
	status := "error"
	if success {
		status = "success"
	}
	migrationsTotal.WithLabelValues(resource, mode, status).Inc()
}
