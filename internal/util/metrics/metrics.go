// Package metrics registers the Prometheus collectors shared across the
// XyPriss runtime: module-level collectors registered once at init.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RequestDuration tracks end-to-end request latency by route and status.
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "xypriss",
		Subsystem: "dispatch",
		Name:      "request_duration_seconds",
		Help:      "Time spent handling a request end to end.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "classification", "status"})

	// RequestsTotal counts dispatched requests.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xypriss",
		Subsystem: "dispatch",
		Name:      "requests_total",
		Help:      "Total requests processed.",
	}, []string{"method", "route", "classification", "status"})

	// CacheOpsTotal counts cache operations by tier and result.
	CacheOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xypriss",
		Subsystem: "cache",
		Name:      "ops_total",
		Help:      "Total cache operations.",
	}, []string{"tier", "op", "result"})

	// CacheLatency tracks per-operation cache latency.
	CacheLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "xypriss",
		Subsystem: "cache",
		Name:      "op_duration_seconds",
		Help:      "Cache operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"tier", "op"})

	// MiddlewareLatency tracks per-middleware execution latency.
	MiddlewareLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "xypriss",
		Subsystem: "middleware",
		Name:      "duration_seconds",
		Help:      "Per-middleware execution latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"id"})

	// PluginHookLatency tracks per-plugin hook execution latency.
	PluginHookLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "xypriss",
		Subsystem: "plugin",
		Name:      "hook_duration_seconds",
		Help:      "Per-plugin hook execution latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"plugin_id", "hook"})

	// PluginFailures counts plugin hook failures.
	PluginFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xypriss",
		Subsystem: "plugin",
		Name:      "hook_failures_total",
		Help:      "Total plugin hook failures.",
	}, []string{"plugin_id", "hook"})

	// WorkersActive reports the current number of cluster workers.
	WorkersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xypriss",
		Subsystem: "cluster",
		Name:      "workers_active",
		Help:      "Current number of active cluster workers.",
	})

	// WorkerRestartsTotal counts cluster worker restarts.
	WorkerRestartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xypriss",
		Subsystem: "cluster",
		Name:      "worker_restarts_total",
		Help:      "Total worker restarts performed by the supervisor.",
	}, []string{"worker_id"})

	// ProxyUpstreamLatency tracks per-upstream reverse-proxy latency.
	ProxyUpstreamLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "xypriss",
		Subsystem: "network",
		Name:      "proxy_upstream_duration_seconds",
		Help:      "Latency of proxied upstream round-trips.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"upstream", "status"})

	// RateLimitRejections counts requests rejected by the rate limiter.
	RateLimitRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xypriss",
		Subsystem: "network",
		Name:      "rate_limit_rejections_total",
		Help:      "Total requests rejected for exceeding a rate limit.",
	}, []string{"key_type"})
)

func init() {
	prometheus.MustRegister(
		RequestDuration,
		RequestsTotal,
		CacheOpsTotal,
		CacheLatency,
		MiddlewareLatency,
		PluginHookLatency,
		PluginFailures,
		WorkersActive,
		WorkerRestartsTotal,
		ProxyUpstreamLatency,
		RateLimitRejections,
	)
}
