package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMetricsRegistered verifies every collector is gathered from the
// default registry once observed.
func TestMetricsRegistered(t *testing.T) {
	QueriesTotal.WithLabelValues("embedded", "ok").Inc()
	QueryDuration.WithLabelValues("embedded").Observe(0.01)
	BatchFunctionFailures.Inc()
	ResolutionsTotal.WithLabelValues("decompilation", "ok").Inc()
	ResolutionDuration.WithLabelValues("decompilation").Observe(1)
	StoreConnected.WithLabelValues("embedded").Set(1)
	IngestedFunctionsTotal.WithLabelValues("ok").Inc()
	ToolCallsTotal.WithLabelValues("bsim_status", "ok").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	expected := map[string]bool{
		"funcsim_queries_total":                 false,
		"funcsim_query_duration_seconds":        false,
		"funcsim_batch_function_failures_total": false,
		"funcsim_resolutions_total":             false,
		"funcsim_resolution_duration_seconds":   false,
		"funcsim_store_connected":               false,
		"funcsim_ingested_functions_total":      false,
		"funcsim_tool_calls_total":              false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		assert.True(t, found, "metric %s not registered", name)
	}
}

func TestStoreConnectedGauge(t *testing.T) {
	StoreConnected.WithLabelValues("networked").Set(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(StoreConnected.WithLabelValues("networked")))
	StoreConnected.WithLabelValues("networked").Set(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(StoreConnected.WithLabelValues("networked")))
}

func TestOutcome(t *testing.T) {
	kind := func(error) string { return "query_failed" }
	assert.Equal(t, "ok", Outcome(nil, kind))
	assert.Equal(t, "query_failed", Outcome(errors.New("boom"), kind))
}
