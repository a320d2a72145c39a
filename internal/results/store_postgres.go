package results

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "examdesk/pkg/domain"
	"examdesk/pkg/platform/sentinel"
)

// PostgresExamStore persists exam publication state.
type PostgresExamStore struct {
	pool *pgxpool.Pool
}

func NewPostgresExamStore(pool *pgxpool.Pool) *PostgresExamStore {
	return &PostgresExamStore{pool: pool}
}

func (s *PostgresExamStore) FindByID(ctx context.Context, tenant id.TenantID, exam id.ExamID) (*Exam, error) {
	var (
		status      string
		publishedAt *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT status, published_at FROM exams
		WHERE tenant = $1 AND id = $2`,
		tenant.String(), exam.String()).Scan(&status, &publishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find exam: %w", err)
	}
	return &Exam{Tenant: tenant, ID: exam, Status: ExamStatus(status), PublishedAt: publishedAt}, nil
}

func (s *PostgresExamStore) MarkPublished(ctx context.Context, tenant id.TenantID, exam id.ExamID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE exams SET status = 'published', published_at = $3
		WHERE tenant = $1 AND id = $2 AND status = 'ready_for_publication'`,
		tenant.String(), exam.String(), at)
	if err != nil {
		return fmt.Errorf("mark exam published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := s.pool.QueryRow(ctx,
			`SELECT status FROM exams WHERE tenant = $1 AND id = $2`,
			tenant.String(), exam.String()).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check exam: %w", err)
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

// PostgresGradeStore reads graded records. Pages are keyed by student_id
// order so the same offset always names the same records.
type PostgresGradeStore struct {
	pool *pgxpool.Pool
}

func NewPostgresGradeStore(pool *pgxpool.Pool) *PostgresGradeStore {
	return &PostgresGradeStore{pool: pool}
}

const gradeColumns = `tenant, exam_id, student_id, subject_id, marks_obtained,
	total_marks, grade_letter, computed_at`

func (s *PostgresGradeStore) Count(ctx context.Context, tenant id.TenantID, exam id.ExamID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM grade_records WHERE tenant = $1 AND exam_id = $2`,
		tenant.String(), exam.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count grade records: %w", err)
	}
	return n, nil
}

func (s *PostgresGradeStore) ListPage(ctx context.Context, tenant id.TenantID, exam id.ExamID, offset, limit int) ([]GradeRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+gradeColumns+`
		FROM grade_records
		WHERE tenant = $1 AND exam_id = $2
		ORDER BY student_id
		OFFSET $3 LIMIT $4`,
		tenant.String(), exam.String(), offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list grade page: %w", err)
	}
	defer rows.Close()

	var out []GradeRecord
	for rows.Next() {
		g, err := scanGrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (s *PostgresGradeStore) FindByStudent(ctx context.Context, tenant id.TenantID, exam id.ExamID, student id.StudentID) (*GradeRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+gradeColumns+`
		FROM grade_records
		WHERE tenant = $1 AND exam_id = $2 AND student_id = $3`,
		tenant.String(), exam.String(), student.String())
	g, err := scanGrade(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find grade record: %w", err)
	}
	return g, nil
}

func scanGrade(row interface{ Scan(dest ...any) error }) (*GradeRecord, error) {
	var (
		rawTenant, rawExam, rawStudent, rawSubject string
		g                                          GradeRecord
	)
	err := row.Scan(&rawTenant, &rawExam, &rawStudent, &rawSubject,
		&g.MarksObtained, &g.TotalMarks, &g.GradeLetter, &g.ComputedAt)
	if err != nil {
		return nil, err
	}
	ids := []struct {
		raw string
		set func(uuid.UUID)
	}{
		{rawTenant, func(u uuid.UUID) { g.Tenant = id.TenantID(u) }},
		{rawExam, func(u uuid.UUID) { g.ExamID = id.ExamID(u) }},
		{rawStudent, func(u uuid.UUID) { g.StudentID = id.StudentID(u) }},
		{rawSubject, func(u uuid.UUID) { g.SubjectID = id.SubjectID(u) }},
	}
	for _, f := range ids {
		u, err := uuid.Parse(f.raw)
		if err != nil {
			return nil, fmt.Errorf("parse id column: %w", err)
		}
		f.set(u)
	}
	return &g, nil
}

// PostgresProgressStore owns the durable checkpoint row per tenant+exam.
type PostgresProgressStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresProgressStore(pool *pgxpool.Pool) *PostgresProgressStore {
	return &PostgresProgressStore{pool: pool, now: time.Now}
}

// Claim takes the publication slot in one conditional upsert. The row-level
// predicate makes the claim atomic across competing workers: a fresh exam
// inserts, a Failed or stalled InProgress row is taken over keeping its
// offset, and anything else leaves zero rows, which is then classified.
func (s *PostgresProgressStore) Claim(ctx context.Context, tenant id.TenantID, exam id.ExamID, total int, stallAfter time.Duration) (*Progress, error) {
	now := s.now().UTC()
	var (
		offset    int
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO publication_progress
			(tenant, exam_id, total_records, processed_offset, status, updated_at)
		VALUES ($1, $2, $3, 0, 'in_progress', $4)
		ON CONFLICT (tenant, exam_id) DO UPDATE
		SET status = 'in_progress', total_records = EXCLUDED.total_records,
			updated_at = EXCLUDED.updated_at
		WHERE publication_progress.status = 'failed'
		   OR (publication_progress.status = 'in_progress'
			   AND publication_progress.updated_at < $5)
		RETURNING processed_offset, updated_at`,
		tenant.String(), exam.String(), total, now, now.Add(-stallAfter)).
		Scan(&offset, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var status string
		probeErr := s.pool.QueryRow(ctx, `
			SELECT status FROM publication_progress
			WHERE tenant = $1 AND exam_id = $2`,
			tenant.String(), exam.String()).Scan(&status)
		if probeErr != nil {
			return nil, fmt.Errorf("check publication progress: %w", probeErr)
		}
		if ProgressStatus(status) == ProgressCompleted {
			return nil, sentinel.ErrInvalidState
		}
		return nil, sentinel.ErrAlreadyClaimed
	}
	if err != nil {
		return nil, fmt.Errorf("claim publication: %w", err)
	}
	return &Progress{
		Tenant:          tenant,
		ExamID:          exam,
		TotalRecords:    total,
		ProcessedOffset: offset,
		Status:          ProgressInProgress,
		UpdatedAt:       updatedAt,
	}, nil
}

func (s *PostgresProgressStore) Advance(ctx context.Context, tenant id.TenantID, exam id.ExamID, processedOffset int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE publication_progress
		SET processed_offset = $3, updated_at = $4
		WHERE tenant = $1 AND exam_id = $2`,
		tenant.String(), exam.String(), processedOffset, s.now().UTC())
	if err != nil {
		return fmt.Errorf("advance publication checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresProgressStore) Finish(ctx context.Context, tenant id.TenantID, exam id.ExamID, status ProgressStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE publication_progress
		SET status = $3, updated_at = $4
		WHERE tenant = $1 AND exam_id = $2`,
		tenant.String(), exam.String(), string(status), s.now().UTC())
	if err != nil {
		return fmt.Errorf("finish publication run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresProgressStore) Get(ctx context.Context, tenant id.TenantID, exam id.ExamID) (*Progress, error) {
	p := Progress{Tenant: tenant, ExamID: exam}
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT total_records, processed_offset, status, updated_at
		FROM publication_progress
		WHERE tenant = $1 AND exam_id = $2`,
		tenant.String(), exam.String()).Scan(
		&p.TotalRecords, &p.ProcessedOffset, &status, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get publication progress: %w", err)
	}
	p.Status = ProgressStatus(status)
	return &p, nil
}
