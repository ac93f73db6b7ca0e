package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the worker. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	CarrierRequests *prometheus.CounterVec
	CarrierLatency  *prometheus.HistogramVec
	ReconcileCycles *prometheus.CounterVec
	ReconcileOrders *prometheus.CounterVec
	EventsInserted  prometheus.Counter
	RateQuotes      *prometheus.CounterVec
	Labels          *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CarrierRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipbox_carrier_requests_total",
				Help: "Carrier API requests by operation and outcome (HTTP status or network)",
			},
			[]string{"operation", "outcome"},
		),
		CarrierLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shipbox_carrier_request_duration_seconds",
				Help:    "Carrier API request duration by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ReconcileCycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipbox_reconcile_cycles_total",
				Help: "Tracking reconciliation cycles by result",
			},
			[]string{"result"},
		),
		ReconcileOrders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipbox_reconcile_orders_total",
				Help: "Orders handled by the reconciler by result (unchanged, updated, error)",
			},
			[]string{"result"},
		),
		EventsInserted: f.NewCounter(prometheus.CounterOpts{
			Name: "shipbox_tracking_events_inserted_total",
			Help: "Tracking events persisted after deduplication",
		}),
		RateQuotes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipbox_rate_estimates_total",
				Help: "Rate estimates by the tier that answered",
			},
			[]string{"tier"},
		),
		Labels: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipbox_labels_total",
				Help: "Label creation attempts by result",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) ObserveCarrierCall(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CarrierRequests.WithLabelValues(op, outcome).Inc()
	m.CarrierLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordCycle(result string) {
	if m == nil {
		return
	}
	m.ReconcileCycles.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordOrder(result string) {
	if m == nil {
		return
	}
	m.ReconcileOrders.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordEventsInserted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EventsInserted.Add(float64(n))
}

func (m *Metrics) RecordRateTier(tier string) {
	if m == nil {
		return
	}
	m.RateQuotes.WithLabelValues(tier).Inc()
}

func (m *Metrics) RecordLabel(result string) {
	if m == nil {
		return
	}
	m.Labels.WithLabelValues(result).Inc()
}
