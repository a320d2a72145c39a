package results

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"examdesk/internal/results/metrics"
	id "examdesk/pkg/domain"
	dErrors "examdesk/pkg/domain-errors"
	"examdesk/pkg/platform/sentinel"
)

// Reader serves the result-day read path: cache first, grade store on miss,
// re-warming the cache so the next read for the same student hits.
type Reader struct {
	exams   ExamStore
	grades  GradeStore
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewReader(exams ExamStore, grades GradeStore, cache Cache, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *Reader {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Reader{exams: exams, grades: grades, cache: cache, ttl: ttl, logger: logger, metrics: m}
}

// Result returns one student's published result. Results exist for readers
// only once the exam is Published; before that the lookup is NotFound even if
// the grade record exists.
func (r *Reader) Result(ctx context.Context, tenant id.TenantID, examID id.ExamID, student id.StudentID) (*StudentResult, error) {
	cached, err := r.cache.Get(ctx, tenant, examID, student)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) && r.logger != nil {
		// A degraded cache falls through to the store.
		r.logger.WarnContext(ctx, "result cache read failed",
			"tenant", tenant.String(),
			"exam_id", examID.String(),
			"error", err.Error(),
		)
	}

	exam, err := r.exams.FindByID(ctx, tenant, examID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "exam not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load exam", err)
	}
	if exam.Status != ExamStatusPublished {
		return nil, dErrors.New(dErrors.CodeNotFound, "result not published")
	}

	grade, err := r.grades.FindByStudent(ctx, tenant, examID, student)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no result for student")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load grade record", err)
	}

	result := ResultOf(grade)
	if err := r.cache.Set(ctx, result, r.ttl); err != nil && r.logger != nil {
		r.logger.WarnContext(ctx, "result cache rewarm failed",
			"tenant", tenant.String(),
			"exam_id", examID.String(),
			"error", err.Error(),
		)
	}
	return &result, nil
}
