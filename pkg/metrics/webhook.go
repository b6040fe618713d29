package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics counts settlement webhook deliveries by outcome.
type WebhookMetrics struct {
	outcomes *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook counters on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_webhook_total",
		Help: "Settlement webhook deliveries by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(outcomes)
	return &WebhookMetrics{outcomes: outcomes}
}

// IncOutcome increments the counter for the given reconciliation outcome.
func (w *WebhookMetrics) IncOutcome(outcome string) {
	if w == nil || w.outcomes == nil {
		return
	}
	w.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}
