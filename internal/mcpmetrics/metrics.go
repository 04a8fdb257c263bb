// Package mcpmetrics exposes the server's cross-cutting Prometheus
// metrics: tool-call latency, rate-limit rejections, circuit-breaker
// state, and session-grouping throughput (spec §3's PerformanceMetrics
// surfaced as time series rather than per-response fields).
//
// The package-level promauto.New* variable style is kept from
// tomtom215-cartographus/internal/metrics/metrics.go.
package mcpmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ToolCallsTotal counts every tools/call dispatch, labeled by tool
	// name and outcome ("ok" or an mcperr.Code).
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dshield_mcp_tool_calls_total",
			Help: "Total number of tools/call invocations.",
		},
		[]string{"tool", "outcome"},
	)

	// ToolCallDuration is per-tool handler latency.
	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dshield_mcp_tool_call_duration_seconds",
			Help:    "Tool call handler duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// RateLimitRejectionsTotal counts rejections per hierarchy tier
	// (spec §4.2: key, connection, global).
	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dshield_mcp_rate_limit_rejections_total",
			Help: "Total requests rejected by a rate-limit tier.",
		},
		[]string{"tier"},
	)

	// CircuitBreakerState reports 0=closed, 1=half-open, 2=open for each
	// named breaker (elasticsearch, dshield).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dshield_mcp_circuit_breaker_state",
			Help: "Circuit breaker state: 0=closed, 1=half-open, 2=open.",
		},
		[]string{"breaker"},
	)

	// QueryDocumentsExamined tracks PerformanceMetrics.TotalDocumentsExamined
	// per query, labeled by complexity.
	QueryDocumentsExamined = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dshield_mcp_query_documents_examined",
			Help:    "Documents examined per Elasticsearch query.",
			Buckets: []float64{10, 100, 1000, 10000, 100000},
		},
		[]string{"complexity"},
	)

	// QueryCacheHitsTotal counts cache hits vs. misses across memoized
	// upstream lookups (e.g. DShield per-IP enrichment).
	QueryCacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dshield_mcp_query_cache_total",
			Help: "Memoized upstream lookup cache hits and misses.",
		},
		[]string{"outcome"}, // "hit" | "miss"
	)

	// SessionsGroupedTotal counts sessions closed by the Session
	// Chunker, labeled by whether the key was synthetic (spec §4.5).
	SessionsGroupedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dshield_mcp_sessions_grouped_total",
			Help: "Sessions closed by the session chunker.",
		},
		[]string{"synthetic"},
	)

	// SessionBoundaryForcedTotal counts chunk cuts that hit the hard
	// ceiling rather than a natural session boundary.
	SessionBoundaryForcedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dshield_mcp_session_boundary_forced_total",
			Help: "Chunk cuts forced by the hard ceiling rather than a session boundary.",
		},
	)

	// DShieldEnrichmentsTotal counts IP enrichment lookups, labeled by
	// source (live, cache, circuit_open).
	DShieldEnrichmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dshield_mcp_dshield_enrichments_total",
			Help: "DShield IP reputation lookups by source.",
		},
		[]string{"source"},
	)
)

// BreakerStateValue maps a gobreaker-style state name to the numeric
// gauge value Grafana dashboards expect (0=closed, 1=half-open,
// 2=open), following the convention
// tomtom215-cartographus/internal/eventprocessor uses for its own
// circuit_breaker_state gauge.
func BreakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 2
	case "half-open":
		return 1
	default:
		return 0
	}
}
