package results

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"examdesk/internal/results/metrics"
	id "examdesk/pkg/domain"
	"examdesk/pkg/platform/sentinel"
)

// Dispatcher runs publication jobs on a fixed worker pool with a bounded
// backlog. A submission that finds both the pool and the backlog full is
// rejected immediately rather than queued without bound.
type Dispatcher struct {
	publisher *Publisher
	jobs      chan publishJob
	workers   int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type publishJob struct {
	tenant id.TenantID
	examID id.ExamID
}

// NewDispatcher sizes the pool and backlog. Zero or negative values fall back
// to 10 workers and a backlog of 32.
func NewDispatcher(publisher *Publisher, workers, backlog int, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if workers <= 0 {
		workers = 10
	}
	if backlog <= 0 {
		backlog = 32
	}
	return &Dispatcher{
		publisher: publisher,
		jobs:      make(chan publishJob, backlog),
		workers:   workers,
		logger:    logger,
		metrics:   m,
	}
}

// Enqueue submits a publication job without blocking. Returns
// sentinel.ErrBacklogFull when the backlog cannot absorb it.
func (d *Dispatcher) Enqueue(tenant id.TenantID, examID id.ExamID) error {
	select {
	case d.jobs <- publishJob{tenant: tenant, examID: examID}:
		return nil
	default:
		d.metrics.IncRejection()
		return sentinel.ErrBacklogFull
	}
}

// Run blocks, processing jobs until ctx is cancelled. Job failures are
// logged, not fatal: the checkpoint keeps failed runs resumable.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case job := <-d.jobs:
					if _, err := d.publisher.Publish(ctx, job.tenant, job.examID); err != nil && d.logger != nil {
						d.logger.ErrorContext(ctx, "publication job failed",
							"tenant", job.tenant.String(),
							"exam_id", job.examID.String(),
							"error", err.Error(),
						)
					}
				}
			}
		})
	}
	return g.Wait()
}

// Backlog reports current queue depth; used by tests and health reporting.
func (d *Dispatcher) Backlog() int {
	return len(d.jobs)
}
