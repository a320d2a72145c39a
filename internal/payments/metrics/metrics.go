package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the payments module.
type Metrics struct {
	// Initiation outcomes
	Initiations *prometheus.CounterVec

	// Webhook callback outcomes
	Webhooks *prometheus.CounterVec
}

// New creates a Metrics instance with all payment metrics registered.
func New() *Metrics {
	return &Metrics{
		Initiations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "examdesk_payment_initiations_total",
			Help: "Payment initiations by outcome",
		}, []string{"outcome"}), // outcome: "created", "replayed", "rejected"

		Webhooks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "examdesk_payment_webhooks_total",
			Help: "Gateway webhook callbacks by outcome",
		}, []string{"outcome"}), // outcome: "succeeded", "failed", "duplicate", "unknown"
	}
}

func (m *Metrics) IncInitiation(outcome string) {
	if m != nil {
		m.Initiations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncWebhook(outcome string) {
	if m != nil {
		m.Webhooks.WithLabelValues(outcome).Inc()
	}
}
