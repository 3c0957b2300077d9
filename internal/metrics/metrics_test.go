package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCycle(CycleOK, time.Now().Add(-time.Second))
	m.ObserveCycle(CycleError, time.Now())
	m.ObserveMessage("created")
	m.ObserveMessage("created")
	m.ObserveMessage("ignored")
	m.SetRunning(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues(CycleOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues(CycleError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Running))
	assert.Positive(t, testutil.ToFloat64(m.LastSuccess))

	m.SetRunning(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Running))

	n, err := testutil.GatherAndCount(reg, "procure_poll_cycle_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCycle(CycleOK, time.Now())
		m.ObserveMessage("created")
		m.SetRunning(true)
	})
}
