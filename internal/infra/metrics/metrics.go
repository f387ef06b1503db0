// Package metrics provides Prometheus metrics for gridmon.
// Counters, gauges and histograms for dispatch, stats production, predicate
// queries, the safety shim, topics and history.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Dispatch ───────────────────────────────────────────────────────────────

// DispatchTotal counts dispatch calls by mode (owner, all) and outcome.
var DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gridmon",
	Name:      "dispatch_total",
	Help:      "Total task dispatches by mode and outcome.",
}, []string{"mode", "outcome"})

// MemberFailures counts member futures that failed or timed out.
var MemberFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gridmon",
	Name:      "member_failures_total",
	Help:      "Total member task failures by reason.",
}, []string{"reason"})

// MembersKnown tracks the member count seen at the last fan-out.
var MembersKnown = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "gridmon",
	Name:      "members_known",
	Help:      "Number of members targeted by the last fan-out dispatch.",
})

// ─── Stats Production ───────────────────────────────────────────────────────

// ProduceLatency tracks how long a stats product takes to assemble.
var ProduceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "gridmon",
	Name:      "produce_latency_seconds",
	Help:      "Stats product assembly duration in seconds.",
	Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
}, []string{"kind"})

// DegradedProducts counts products missing at least one member.
var DegradedProducts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gridmon",
	Name:      "degraded_products_total",
	Help:      "Stats products with fewer entries than dispatched members.",
}, []string{"kind"})

// ─── Queries ────────────────────────────────────────────────────────────────

// QueryLatency tracks predicate query duration by collection kind.
var QueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "gridmon",
	Name:      "query_latency_seconds",
	Help:      "Predicate query duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"kind"})

// QueryMatches counts elements returned by predicate queries.
var QueryMatches = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gridmon",
	Name:      "query_matches_total",
	Help:      "Total elements matched by predicate queries.",
}, []string{"kind"})

// QueryErrors counts queries that failed as a whole.
var QueryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gridmon",
	Name:      "query_errors_total",
	Help:      "Total failed predicate queries.",
}, []string{"kind"})

// PredicateFaults counts element evaluations contained by the safety shim.
var PredicateFaults = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gridmon",
	Name:      "predicate_faults_total",
	Help:      "Predicate evaluations that faulted and were treated as non-matching.",
}, []string{"stage"})

// ─── Topics ─────────────────────────────────────────────────────────────────

// TopicSubscribers tracks active topic subscriptions.
var TopicSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "gridmon",
	Name:      "topic_subscribers",
	Help:      "Number of active topic subscriptions.",
})

// TopicNotices counts notices published by topic type and payload type.
var TopicNotices = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gridmon",
	Name:      "topic_notices_total",
	Help:      "Total notices published to subscribers.",
}, []string{"topic", "type"})

// TopicDropped counts notices dropped because a subscriber was slow.
var TopicDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "gridmon",
	Name:      "topic_dropped_total",
	Help:      "Notices dropped for slow subscribers.",
})

// ─── History ────────────────────────────────────────────────────────────────

// HistoryWrites counts product snapshots persisted to the history store.
var HistoryWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gridmon",
	Name:      "history_writes_total",
	Help:      "Stats products written to the history store by outcome.",
}, []string{"outcome"})
