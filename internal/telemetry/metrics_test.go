package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveCarrierCall("get tracking", "200", 120*time.Millisecond)
	m.ObserveCarrierCall("get tracking", "200", 80*time.Millisecond)
	m.RecordCycle("ok")
	m.RecordEventsInserted(3)
	m.RecordEventsInserted(0)
	m.RecordRateTier("LIVE")

	require.Equal(t, 2.0, testutil.ToFloat64(m.CarrierRequests.WithLabelValues("get tracking", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ReconcileCycles.WithLabelValues("ok")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.EventsInserted))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RateQuotes.WithLabelValues("LIVE")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveCarrierCall("x", "200", time.Second)
		m.RecordCycle("ok")
		m.RecordOrder("updated")
		m.RecordEventsInserted(1)
		m.RecordRateTier("LIVE")
		m.RecordLabel("created")
	})
}

func TestNewLogger(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "WARN", "error", ""} {
		l, err := NewLogger(lvl)
		require.NoError(t, err)
		require.NotNil(t, l)
	}
}
