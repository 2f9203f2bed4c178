package metrics

import "github.com/prometheus/client_golang/prometheus"

// PayoutMetrics counts batch settlement outcomes.
type PayoutMetrics struct {
	processed *prometheus.CounterVec
}

// NewPayoutMetrics registers the payout counters on the provided registerer.
func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	if reg == nil {
		return &PayoutMetrics{}
	}
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_batch_items",
		Help: "Payout batch items by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(processed)
	return &PayoutMetrics{processed: processed}
}

// IncProcessed records one batch item with the given outcome (success/failure).
func (m *PayoutMetrics) IncProcessed(outcome string) {
	if m == nil || m.processed == nil {
		return
	}
	m.processed.WithLabelValues(normalizeLabel(outcome)).Inc()
}
