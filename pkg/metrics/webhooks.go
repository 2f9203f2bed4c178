package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics counts reconciliation outcomes per provider.
type WebhookMetrics struct {
	accepted   *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	rejected   *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook counters on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	accepted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_accepted",
		Help: "Webhook events applied to the ledger.",
	}, []string{"provider"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_duplicate",
		Help: "Webhook events the idempotency guard flagged as replays.",
	}, []string{"provider"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_rejected",
		Help: "Webhook events failing signature or payload validation.",
	}, []string{"provider"})
	reg.MustRegister(accepted, duplicates, rejected)
	return &WebhookMetrics{
		accepted:   accepted,
		duplicates: duplicates,
		rejected:   rejected,
	}
}

// IncAccepted increments the accepted counter for the named provider.
func (m *WebhookMetrics) IncAccepted(provider string) {
	if m == nil || m.accepted == nil {
		return
	}
	m.accepted.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncDuplicate increments the duplicate counter for the named provider.
func (m *WebhookMetrics) IncDuplicate(provider string) {
	if m == nil || m.duplicates == nil {
		return
	}
	m.duplicates.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncRejected increments the rejected counter for the named provider.
func (m *WebhookMetrics) IncRejected(provider string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(provider)).Inc()
}

func normalizeLabel(provider string) string {
	if provider == "" {
		return "unknown"
	}
	return provider
}
