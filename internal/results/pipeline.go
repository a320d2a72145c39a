package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"examdesk/internal/results/metrics"
	id "examdesk/pkg/domain"
	dErrors "examdesk/pkg/domain-errors"
	"examdesk/pkg/platform/sentinel"
)

// PublisherConfig bounds one publication run.
type PublisherConfig struct {
	Topic         string
	BatchSize     int
	ResultTTL     time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	StallAfter    time.Duration
}

func (c *PublisherConfig) withDefaults() {
	if c.Topic == "" {
		c.Topic = "exam.results.published"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = 24 * time.Hour
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 4
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
	if c.StallAfter <= 0 {
		c.StallAfter = 5 * time.Minute
	}
}

// BatchCacheWriter is implemented by caches that can warm a whole batch in
// one round trip; the pipeline uses it when available.
type BatchCacheWriter interface {
	SetBatch(ctx context.Context, batch []StudentResult, ttl time.Duration) error
}

// Publisher moves every grade record of a ReadyForPublication exam into the
// result cache and emits one publication event per record, in bounded
// batches, resumable from a durable checkpoint.
type Publisher struct {
	exams    ExamStore
	grades   GradeStore
	progress ProgressStore
	cache    Cache
	notifier Notifier
	cfg      PublisherConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for run reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// NewPublisher creates a result publisher.
func NewPublisher(exams ExamStore, grades GradeStore, progress ProgressStore, cache Cache, notifier Notifier, cfg PublisherConfig, opts ...Option) *Publisher {
	cfg.withDefaults()
	p := &Publisher{
		exams:    exams,
		grades:   grades,
		progress: progress,
		cache:    cache,
		notifier: notifier,
		cfg:      cfg,
		tracer:   otel.Tracer("examdesk/results"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish runs one publication attempt for an exam. Validation failures
// (wrong state, live claim) surface as coded errors before any work happens;
// batch exhaustion surfaces as a publication failure carrying the aggregate
// report, with the checkpoint intact for the next run.
func (p *Publisher) Publish(ctx context.Context, tenant id.TenantID, examID id.ExamID) (*Report, error) {
	ctx, span := p.tracer.Start(ctx, "results.publish")
	defer span.End()
	start := p.now()

	exam, err := p.exams.FindByID(ctx, tenant, examID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "exam not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load exam", err)
	}
	if exam.Status != ExamStatusReadyForPublication {
		p.metrics.IncRun("invalid_state")
		return nil, dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("exam is %s, not ready for publication", exam.Status))
	}

	total, err := p.grades.Count(ctx, tenant, examID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to count grade records", err)
	}

	prog, err := p.progress.Claim(ctx, tenant, examID, total, p.cfg.StallAfter)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrAlreadyClaimed):
			return nil, dErrors.New(dErrors.CodeConflict, "publication already in progress")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeInvalidState, "publication already completed")
		default:
			return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to claim publication", err)
		}
	}

	report := &Report{Resumed: prog.ProcessedOffset > 0}
	offset := prog.ProcessedOffset

	for offset < total {
		// Cancellation checkpoints at batch boundaries only, never mid-batch,
		// so the checkpoint always describes whole batches.
		select {
		case <-ctx.Done():
			return p.fail(ctx, tenant, examID, report, dErrors.Wrap(dErrors.CodeUnavailable, "publication cancelled", ctx.Err()))
		default:
		}

		batch, err := p.grades.ListPage(ctx, tenant, examID, offset, p.cfg.BatchSize)
		if err != nil {
			return p.fail(ctx, tenant, examID, report, dErrors.Wrap(dErrors.CodeInternal, "failed to read grade batch", err))
		}
		if len(batch) == 0 {
			break
		}

		report.Attempted += len(batch)
		if err := p.publishBatchWithRetry(ctx, batch); err != nil {
			return p.fail(ctx, tenant, examID, report, dErrors.Wrap(dErrors.CodeUnavailable, "publication failed after retries", err))
		}

		offset += len(batch)
		if err := p.progress.Advance(ctx, tenant, examID, offset); err != nil {
			return p.fail(ctx, tenant, examID, report, dErrors.Wrap(dErrors.CodeInternal, "failed to advance checkpoint", err))
		}
		report.Succeeded += len(batch)
		report.Batches++
		p.metrics.IncBatch()
		p.metrics.AddRecords(len(batch))
	}

	publishedAt := p.now().UTC()
	if err := p.exams.MarkPublished(ctx, tenant, examID, publishedAt); err != nil {
		return p.fail(ctx, tenant, examID, report, dErrors.Wrap(dErrors.CodeInternal, "failed to mark exam published", err))
	}
	if err := p.progress.Finish(ctx, tenant, examID, ProgressCompleted); err != nil {
		return report, dErrors.Wrap(dErrors.CodeInternal, "failed to finish checkpoint", err)
	}

	p.metrics.IncRun("published")
	p.metrics.ObserveRun(p.now().Sub(start))
	if p.logger != nil {
		p.logger.InfoContext(ctx, "exam published",
			"tenant", tenant.String(),
			"exam_id", examID.String(),
			"records", total,
			"batches", report.Batches,
			"resumed", report.Resumed,
		)
	}
	return report, nil
}

// Status reports the current checkpoint for an exam.
func (p *Publisher) Status(ctx context.Context, tenant id.TenantID, examID id.ExamID) (*Progress, error) {
	prog, err := p.progress.Get(ctx, tenant, examID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no publication run for exam")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load publication progress", err)
	}
	return prog, nil
}

func (p *Publisher) publishBatchWithRetry(ctx context.Context, batch []GradeRecord) error {
	backoff := p.cfg.RetryBackoff
	var err error
	for attempt := 1; attempt <= p.cfg.RetryAttempts; attempt++ {
		err = p.publishBatch(ctx, batch)
		if err == nil {
			return nil
		}
		// Only transient infrastructure faults are worth retrying.
		if !errors.Is(err, sentinel.ErrUnavailable) {
			return err
		}
		if attempt == p.cfg.RetryAttempts {
			break
		}
		p.metrics.IncBatchRetry()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

// publishBatch warms the cache for the batch, then emits one event per
// record. A retried batch may re-emit events; consumers deduplicate by the
// stable event ID.
func (p *Publisher) publishBatch(ctx context.Context, batch []GradeRecord) error {
	results := make([]StudentResult, len(batch))
	for i := range batch {
		results[i] = ResultOf(&batch[i])
	}

	if batchWriter, ok := p.cache.(BatchCacheWriter); ok {
		if err := batchWriter.SetBatch(ctx, results, p.cfg.ResultTTL); err != nil {
			return err
		}
	} else {
		for i := range results {
			if err := p.cache.Set(ctx, results[i], p.cfg.ResultTTL); err != nil {
				return err
			}
		}
	}

	publishedAt := p.now().UTC()
	for i := range batch {
		g := &batch[i]
		event := Event{
			ID:          EventID(g.Tenant, g.ExamID, g.StudentID),
			Tenant:      g.Tenant.String(),
			ExamID:      g.ExamID.String(),
			StudentID:   g.StudentID.String(),
			Category:    g.Category(),
			PublishedAt: publishedAt,
		}
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal publication event: %w", err)
		}
		if err := p.notifier.Publish(ctx, p.cfg.Topic, event.ID, payload); err != nil {
			return err
		}
	}
	return nil
}

// fail records a failed run: the checkpoint keeps its last advanced offset so
// the next run resumes instead of reprocessing.
func (p *Publisher) fail(ctx context.Context, tenant id.TenantID, examID id.ExamID, report *Report, cause error) (*Report, error) {
	if err := p.progress.Finish(ctx, tenant, examID, ProgressFailed); err != nil && p.logger != nil {
		p.logger.ErrorContext(ctx, "failed to record publication failure",
			"tenant", tenant.String(),
			"exam_id", examID.String(),
			"error", err.Error(),
		)
	}
	p.metrics.IncRun("failed")
	if p.logger != nil {
		p.logger.ErrorContext(ctx, "publication failed",
			"tenant", tenant.String(),
			"exam_id", examID.String(),
			"attempted", report.Attempted,
			"succeeded", report.Succeeded,
			"error", cause.Error(),
		)
	}
	return report, cause
}
