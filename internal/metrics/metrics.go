package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal tracks guarded operation outcomes per operation name
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustcore_operations_total",
			Help: "Total number of guarded operations executed",
		},
		[]string{"operation", "outcome"},
	)

	// OperationLatency tracks guarded operation latency
	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trustcore_operation_latency_seconds",
			Help:    "Guarded operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// RetryAttempts tracks retry attempts beyond the first try
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustcore_retry_attempts_total",
			Help: "Total number of retry attempts",
		},
		[]string{"operation"},
	)

	// BreakerState reports circuit breaker state per operation (0=closed, 1=open, 2=half-open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trustcore_breaker_state",
			Help: "Circuit breaker state per operation (0=closed, 1=open, 2=half-open)",
		},
		[]string{"operation"},
	)

	// RateLimitChecks tracks rate limit decisions per action
	RateLimitChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustcore_rate_limit_checks_total",
			Help: "Total number of rate limit checks",
		},
		[]string{"action", "outcome"},
	)

	// CacheRequests tracks cache hits and misses per named cache
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustcore_cache_requests_total",
			Help: "Total number of cache lookups",
		},
		[]string{"cache", "outcome"},
	)

	// PendingOperations reports the current offline queue depth
	PendingOperations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trustcore_pending_operations",
			Help: "Number of operations queued for offline replay",
		},
	)

	// DBConnectionPoolUsage reports connection pool utilization percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trustcore_db_pool_usage_percent",
			Help: "Database connection pool utilization percentage",
		},
	)

	// FlagsRaised tracks suspicious activity flags per reason
	FlagsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustcore_flags_raised_total",
			Help: "Total number of suspicious activity flags raised",
		},
		[]string{"reason"},
	)
)
