// Package observability provides Prometheus metrics for the similarity
// engine and an optional HTTP listener that exposes them.
package observability

import "github.com/prometheus/client_golang/prometheus"

// QueryBuckets covers store lookups from sub-millisecond embedded queries to
// multi-second networked scans.
var QueryBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}

// ResolveBuckets covers disassembly and decompilation round trips.
var ResolveBuckets = []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}

var (
	// QueriesTotal counts ranker queries by store kind and outcome.
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funcsim_queries_total",
			Help: "Similarity queries",
		},
		[]string{"store", "outcome"},
	)

	// QueryDuration records ranker query duration in seconds.
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "funcsim_query_duration_seconds",
			Help:    "Similarity query duration",
			Buckets: QueryBuckets,
		},
		[]string{"store"},
	)

	// BatchFunctionFailures counts per-function failures inside QueryAll batches.
	BatchFunctionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "funcsim_batch_function_failures_total",
			Help: "Per-function failures in batch queries",
		},
	)

	// ResolutionsTotal counts artifact resolutions by kind and outcome.
	ResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funcsim_resolutions_total",
			Help: "Artifact resolutions",
		},
		[]string{"kind", "outcome"},
	)

	// ResolutionDuration records resolution time in seconds by kind.
	ResolutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "funcsim_resolution_duration_seconds",
			Help:    "Artifact resolution duration",
			Buckets: ResolveBuckets,
		},
		[]string{"kind"},
	)

	// StoreConnected is 1 while a similarity store is open.
	StoreConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "funcsim_store_connected",
			Help: "Whether a similarity store is open, by kind",
		},
		[]string{"kind"},
	)

	// IngestedFunctionsTotal counts signatures written by catalog ingestion.
	IngestedFunctionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funcsim_ingested_functions_total",
			Help: "Function signatures ingested",
		},
		[]string{"outcome"},
	)

	// ToolCallsTotal counts MCP tool calls by tool and error kind ("ok" on success).
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funcsim_tool_calls_total",
			Help: "MCP tool calls",
		},
		[]string{"tool", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		QueriesTotal,
		QueryDuration,
		BatchFunctionFailures,
		ResolutionsTotal,
		ResolutionDuration,
		StoreConnected,
		IngestedFunctionsTotal,
		ToolCallsTotal,
	)
}

// Outcome maps an error to a metric label: "ok" for nil, otherwise the
// supplied kind name.
func Outcome(err error, kind func(error) string) string {
	if err == nil {
		return "ok"
	}
	return kind(err)
}
