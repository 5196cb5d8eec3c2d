// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_cycles_completed_total",
			Help: "Total number of pipeline cycles completed",
		},
		[]string{"status"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outreach_cycle_duration_seconds",
			Help:    "Duration of a full pipeline cycle in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	OpportunitiesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_opportunities_processed_total",
			Help: "Opportunities processed per cycle by outcome",
		},
		[]string{"outcome"},
	)

	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_dispatches_total",
			Help: "Dispatch attempts by channel and resulting status",
		},
		[]string{"channel", "status"},
	)

	GenerationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_generation_failures_total",
			Help: "Content generation failures by channel",
		},
		[]string{"channel"},
	)

	RateLimitWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_rate_limit_waits_total",
			Help: "Acquire calls that had to wait or timed out, by channel",
		},
		[]string{"channel", "result"},
	)

	EngagementEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_engagement_events_total",
			Help: "Engagement events recorded by type",
		},
		[]string{"type"},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outreach_cache_hits_total",
			Help: "Cache lookups that returned a value",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outreach_cache_misses_total",
			Help: "Cache lookups that fell through to the underlying call",
		},
	)
)
