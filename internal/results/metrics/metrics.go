package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the result publication module.
type Metrics struct {
	// Publication run outcomes
	Runs *prometheus.CounterVec

	// Batches processed and batch retries
	Batches      prometheus.Counter
	BatchRetries prometheus.Counter

	// Records published (cache written + event emitted)
	RecordsPublished prometheus.Counter

	// Full run duration
	RunDuration prometheus.Histogram

	// Read path
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Dispatcher backpressure rejections
	Rejections prometheus.Counter
}

// New creates a Metrics instance with all publication metrics registered.
func New() *Metrics {
	return &Metrics{
		Runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "examdesk_publication_runs_total",
			Help: "Total publication runs by outcome",
		}, []string{"outcome"}), // outcome: "published", "failed", "invalid_state"

		Batches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examdesk_publication_batches_total",
			Help: "Total batches processed across all runs",
		}),

		BatchRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examdesk_publication_batch_retries_total",
			Help: "Total transient-error retries at batch level",
		}),

		RecordsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examdesk_publication_records_total",
			Help: "Total grade records published to cache and bus",
		}),

		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "examdesk_publication_run_duration_seconds",
			Help:    "Duration of full publication runs",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examdesk_result_cache_hits_total",
			Help: "Result cache hits on the read path",
		}),

		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examdesk_result_cache_misses_total",
			Help: "Result cache misses on the read path",
		}),

		Rejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examdesk_publication_rejections_total",
			Help: "Publication submissions rejected by backpressure",
		}),
	}
}

func (m *Metrics) IncRun(outcome string) {
	if m != nil {
		m.Runs.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncBatch() {
	if m != nil {
		m.Batches.Inc()
	}
}

func (m *Metrics) IncBatchRetry() {
	if m != nil {
		m.BatchRetries.Inc()
	}
}

func (m *Metrics) AddRecords(n int) {
	if m != nil {
		m.RecordsPublished.Add(float64(n))
	}
}

func (m *Metrics) ObserveRun(d time.Duration) {
	if m != nil {
		m.RunDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) IncCacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) IncCacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) IncRejection() {
	if m != nil {
		m.Rejections.Inc()
	}
}
