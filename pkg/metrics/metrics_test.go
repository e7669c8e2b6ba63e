package metrics

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePrometheus(t *testing.T) {
	SourceCallsTotal.WithLabelValues("metrics-test", "ok").Inc()
	CircuitState.WithLabelValues("metrics-test").Set(2)

	var buf bytes.Buffer
	require.NoError(t, WritePrometheus(&buf))
	out := buf.String()
	assert.Contains(t, out, "verify_source_calls_total")
	assert.Contains(t, out, `source="metrics-test"`)
	assert.Contains(t, out, "verify_circuit_state")
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(DedupJoins)
	DedupJoins.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(DedupJoins))

	CacheLookups.WithLabelValues("hit").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(CacheLookups.WithLabelValues("hit")), 1.0)
}
