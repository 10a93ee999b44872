// Package observability exposes the Prometheus metrics the dispatch
// service, matcher and concurrency mediator emit.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pool", Name: "requests_created_total", Help: "Total ride requests accepted by intake",
	})
	RequestsCancelledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_pool", Name: "requests_cancelled_total", Help: "Total cancellations by outcome"},
		[]string{"outcome"},
	)

	MatchCycleRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pool", Name: "match_cycle_runs_total", Help: "Total matching cycle invocations",
	})
	MatchCycleLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ride_pool", Name: "match_cycle_latency_seconds", Help: "Matching cycle wall-clock latency",
	})
	ProposalsEmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pool", Name: "proposals_emitted_total", Help: "Total match proposals emitted by the matcher",
	})
	ProposalsCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pool", Name: "proposals_committed_total", Help: "Total match proposals successfully committed",
	})
	ProposalsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pool", Name: "proposals_failed_total", Help: "Total match proposals that failed to commit",
	})

	LeaseAcquiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pool", Name: "lease_acquired_total", Help: "Total pool leases acquired",
	})
	LeaseUnavailableTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pool", Name: "lease_unavailable_total", Help: "Total lease acquisitions exhausted after retries",
	})
	VersionConflictTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pool", Name: "version_conflict_total", Help: "Total optimistic version-check conflicts",
	})

	SurgeRefreshTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pool", Name: "surge_refresh_total", Help: "Total surge zone refresh ticks",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_pool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_pool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
