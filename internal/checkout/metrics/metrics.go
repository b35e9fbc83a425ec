package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the checkout module.
type Metrics struct {
	// Finalize attempts by outcome: "finalized", "rejected", "blocked"
	FinalizeOutcome *prometheus.CounterVec

	// Finalize attempts stopped client-side by the compliance gate
	ComplianceBlocks prometheus.Counter

	// Round-trip latency of draft-update calls
	DraftUpdateLatency prometheus.Histogram

	// Sales created
	SalesCreated prometheus.Counter
}

// New creates a new Metrics instance with all checkout metrics registered.
func New() *Metrics {
	return &Metrics{
		FinalizeOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "till_checkout_finalize_total",
			Help: "Total finalize attempts by outcome",
		}, []string{"outcome"}),

		ComplianceBlocks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "till_checkout_compliance_blocks_total",
			Help: "Finalize attempts blocked client-side by the compliance gate",
		}),

		DraftUpdateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "till_checkout_draft_update_duration_seconds",
			Help:    "Duration of draft-update round trips to the order backend",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		SalesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "till_checkout_sales_created_total",
			Help: "Total sales created",
		}),
	}
}

// IncrementFinalizeOutcome records one finalize attempt result.
func (m *Metrics) IncrementFinalizeOutcome(outcome string) {
	if m != nil {
		m.FinalizeOutcome.WithLabelValues(outcome).Inc()
	}
}

// IncrementComplianceBlock records a client-side compliance block.
func (m *Metrics) IncrementComplianceBlock() {
	if m != nil {
		m.ComplianceBlocks.Inc()
	}
}

// ObserveDraftUpdateLatency records the duration of one draft-update round trip.
func (m *Metrics) ObserveDraftUpdateLatency(d time.Duration) {
	if m != nil {
		m.DraftUpdateLatency.Observe(d.Seconds())
	}
}

// IncrementSalesCreated records one created sale.
func (m *Metrics) IncrementSalesCreated() {
	if m != nil {
		m.SalesCreated.Inc()
	}
}
