package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the scheduling module.
type Metrics struct {
	// Scheduling outcomes by decision status
	Decisions *prometheus.CounterVec

	// Conflicts reported by dimension
	Conflicts *prometheus.CounterVec

	// Conflict detection latency
	DetectLatency prometheus.Histogram
}

// New creates a Metrics instance with all scheduling metrics registered.
func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "examdesk_schedule_decisions_total",
			Help: "Total scheduling decisions by outcome",
		}, []string{"outcome"}), // outcome: "committed", "rejected"

		Conflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "examdesk_schedule_conflicts_total",
			Help: "Total conflicts reported by dimension",
		}, []string{"dimension"}), // dimension: "room", "student", "invigilator"

		DetectLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "examdesk_schedule_detect_duration_seconds",
			Help:    "Duration of conflict detection across all dimensions",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
	}
}

// IncDecision records a scheduling outcome.
func (m *Metrics) IncDecision(outcome string) {
	if m != nil {
		m.Decisions.WithLabelValues(outcome).Inc()
	}
}

// IncConflict records a reported conflict dimension.
func (m *Metrics) IncConflict(dimension string) {
	if m != nil {
		m.Conflicts.WithLabelValues(dimension).Inc()
	}
}

// ObserveDetect records the duration of one detection pass.
func (m *Metrics) ObserveDetect(d time.Duration) {
	if m != nil {
		m.DetectLatency.Observe(d.Seconds())
	}
}
