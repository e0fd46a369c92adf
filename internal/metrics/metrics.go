package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters and histograms of the publishing pipeline.
type Metrics struct {
	// Per-platform publish attempts
	PublishTotal    *prometheus.CounterVec
	PublishDuration *prometheus.HistogramVec
	TokenRefresh    *prometheus.CounterVec

	// Dispatch rounds
	DispatchTotal  *prometheus.CounterVec
	RetriesTotal   prometheus.Counter
	ClaimConflicts prometheus.Counter
	StaleReclaims  prometheus.Counter

	// HTTP API
	HTTPRequestTotal *prometheus.CounterVec
}

var (
	globalMetrics *Metrics
	metricsMutex  sync.Mutex
)

// NewMetrics returns the process wide instance, creating and registering it
// on first use.
func NewMetrics() *Metrics {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	if globalMetrics != nil {
		return globalMetrics
	}

	m := &Metrics{
		PublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crosspost_publish_total",
			Help: "Platform publish attempts by outcome",
		}, []string{"platform", "result"}),

		PublishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crosspost_publish_duration_seconds",
			Help:    "Duration of a platform publish attempt in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"platform"}),

		TokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crosspost_token_refresh_total",
			Help: "Token refreshes by platform and outcome",
		}, []string{"platform", "result"}),

		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crosspost_dispatch_total",
			Help: "Finished dispatch rounds by aggregate status",
		}, []string{"status"}),

		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crosspost_retries_total",
			Help: "Automatic retries scheduled",
		}),

		ClaimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crosspost_claim_conflicts_total",
			Help: "Dispatch claims lost to another worker",
		}),

		StaleReclaims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crosspost_stale_reclaims_total",
			Help: "Orphaned publishing posts claimed again",
		}),

		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crosspost_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
	}

	registerOrGet(m.PublishTotal)
	registerOrGet(m.PublishDuration)
	registerOrGet(m.TokenRefresh)
	registerOrGet(m.DispatchTotal)
	registerOrGet(m.RetriesTotal)
	registerOrGet(m.ClaimConflicts)
	registerOrGet(m.StaleReclaims)
	registerOrGet(m.HTTPRequestTotal)

	globalMetrics = m
	return m
}

// registerOrGet registers c with the default registry, tolerating a previous
// registration.
func registerOrGet(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}
