package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerCountsOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("stock:revalue").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("stock:revalue").End(boom), boom)
	m.Skip("stock:revalue")
	m.AddItems("stock:revalue", 4)
	m.AddItems("stock:revalue", 0)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("stock:revalue", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("stock:revalue", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("stock:revalue")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.skipped.WithLabelValues("stock:revalue")))
	require.Equal(t, 4.0, testutil.ToFloat64(m.items.WithLabelValues("stock:revalue")))
}

func TestNilMetricsTracker(t *testing.T) {
	var m *Metrics
	m.Skip("x")
	m.AddItems("x", 3)
	require.NoError(t, m.Track("x").End(nil))
}
