package results

import (
	"context"
	"time"

	id "examdesk/pkg/domain"
)

// ExamStore exposes the two status transitions publication needs. Both are
// single atomic writes scoped to one tenant+exam.
type ExamStore interface {
	FindByID(ctx context.Context, tenant id.TenantID, exam id.ExamID) (*Exam, error)
	// MarkPublished transitions ReadyForPublication → Published. Returns
	// sentinel.ErrInvalidState if the exam is in any other state.
	MarkPublished(ctx context.Context, tenant id.TenantID, exam id.ExamID, at time.Time) error
}

// GradeStore reads graded records in stable studentId order so bounded pages
// are never skipped or duplicated across resumed runs.
type GradeStore interface {
	Count(ctx context.Context, tenant id.TenantID, exam id.ExamID) (int, error)
	// ListPage returns up to limit records ordered by studentId, starting at
	// offset within that order.
	ListPage(ctx context.Context, tenant id.TenantID, exam id.ExamID, offset, limit int) ([]GradeRecord, error)
	// FindByStudent backs the cache-miss fallback read path.
	FindByStudent(ctx context.Context, tenant id.TenantID, exam id.ExamID, student id.StudentID) (*GradeRecord, error)
}

// ProgressStore owns the durable publication checkpoint.
type ProgressStore interface {
	// Claim atomically takes the publication slot for an exam. It succeeds
	// when no progress exists, when the previous run Failed, or when an
	// InProgress run has not advanced within stallAfter (stalled-run
	// takeover). It returns sentinel.ErrAlreadyClaimed for a live run and
	// sentinel.ErrInvalidState for a Completed one. On success the returned
	// Progress carries the offset to resume from.
	Claim(ctx context.Context, tenant id.TenantID, exam id.ExamID, total int, stallAfter time.Duration) (*Progress, error)
	// Advance durably moves the checkpoint after a fully-successful batch.
	Advance(ctx context.Context, tenant id.TenantID, exam id.ExamID, processedOffset int) error
	// Finish records the terminal status of the run.
	Finish(ctx context.Context, tenant id.TenantID, exam id.ExamID, status ProgressStatus) error
	Get(ctx context.Context, tenant id.TenantID, exam id.ExamID) (*Progress, error)
}
