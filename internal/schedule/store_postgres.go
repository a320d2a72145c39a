package schedule

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

// PostgresStore persists schedule entries. Identifiers are stored as text
// UUIDs, exam times as minutes since midnight, invigilators as a text array.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const entryColumns = `id, tenant, exam_id, subject_id, class_id, date, start_min, end_min,
	room_id, invigilators, max_marks, duration_minutes, status, committed_at`

func (s *PostgresStore) QueryByRoomAndDate(ctx context.Context, tenant id.TenantID, room id.RoomID, date id.Date) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM schedule_entries
		WHERE tenant = $1 AND room_id = $2 AND date = $3 AND status = 'committed'`,
		tenant.String(), room.String(), date.Time())
	if err != nil {
		return nil, fmt.Errorf("query by room and date: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) QueryByStudentsAndDate(ctx context.Context, tenant id.TenantID, students []id.StudentID, date id.Date) ([]Entry, error) {
	ids := make([]string, len(students))
	for i, st := range students {
		ids[i] = st.String()
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM schedule_entries e
		WHERE e.tenant = $1 AND e.date = $2 AND e.status = 'committed'
		  AND EXISTS (
			SELECT 1 FROM enrollments en
			WHERE en.tenant = e.tenant AND en.class_id = e.class_id
			  AND en.student_id = ANY($3)
		  )`,
		tenant.String(), date.Time(), ids)
	if err != nil {
		return nil, fmt.Errorf("query by students and date: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) QueryByInvigilatorsAndDate(ctx context.Context, tenant id.TenantID, invigilators []id.InvigilatorID, date id.Date) ([]Entry, error) {
	ids := make([]string, len(invigilators))
	for i, inv := range invigilators {
		ids[i] = inv.String()
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM schedule_entries
		WHERE tenant = $1 AND date = $2 AND status = 'committed'
		  AND invigilators && $3`,
		tenant.String(), date.Time(), ids)
	if err != nil {
		return nil, fmt.Errorf("query by invigilators and date: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) FindByID(ctx context.Context, tenant id.TenantID, entryID id.ScheduleID) (*Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM schedule_entries
		WHERE tenant = $1 AND id = $2`,
		tenant.String(), entryID.String())
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find schedule entry: %w", err)
	}
	return entry, nil
}

// Commit locks the room's committed rows for the date and re-checks overlap
// inside the transaction, so the store remains the final arbiter even when
// two validations raced.
func (s *PostgresStore) Commit(ctx context.Context, entry *Entry, supersedes id.ScheduleID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	if !supersedes.IsNil() {
		tag, err := tx.Exec(ctx, `
			UPDATE schedule_entries SET status = 'superseded'
			WHERE tenant = $1 AND id = $2 AND status = 'committed'`,
			entry.Tenant.String(), supersedes.String())
		if err != nil {
			return fmt.Errorf("supersede entry: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return sentinel.ErrInvalidState
		}
	}

	rows, err := tx.Query(ctx, `
		SELECT start_min, end_min FROM schedule_entries
		WHERE tenant = $1 AND room_id = $2 AND date = $3 AND status = 'committed'
		FOR UPDATE`,
		entry.Tenant.String(), entry.RoomID.String(), entry.Date.Time())
	if err != nil {
		return fmt.Errorf("lock room rows: %w", err)
	}
	for rows.Next() {
		var start, end int
		if err := rows.Scan(&start, &end); err != nil {
			rows.Close()
			return fmt.Errorf("scan room row: %w", err)
		}
		if id.Overlaps(entry.Start, entry.End, id.ClockMinutes(start), id.ClockMinutes(end)) {
			rows.Close()
			return sentinel.ErrConflict
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate room rows: %w", err)
	}

	invs := make([]string, len(entry.Invigilators))
	for i, inv := range entry.Invigilators {
		invs[i] = inv.String()
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO schedule_entries
			(id, tenant, exam_id, subject_id, class_id, date, start_min, end_min,
			 room_id, invigilators, max_marks, duration_minutes, status, committed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,'committed',$13)`,
		entry.ID.String(), entry.Tenant.String(), entry.ExamID.String(),
		entry.SubjectID.String(), entry.ClassID.String(), entry.Date.Time(),
		int(entry.Start), int(entry.End), entry.RoomID.String(), invs,
		entry.MaxMarks, entry.DurationMinutes, entry.CommittedAt)
	if err != nil {
		return fmt.Errorf("insert schedule entry: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) Cancel(ctx context.Context, tenant id.TenantID, entryID id.ScheduleID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE schedule_entries SET status = 'cancelled'
		WHERE tenant = $1 AND id = $2 AND status = 'committed'`,
		tenant.String(), entryID.String())
	if err != nil {
		return fmt.Errorf("cancel schedule entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := s.pool.QueryRow(ctx,
			`SELECT status FROM schedule_entries WHERE tenant = $1 AND id = $2`,
			tenant.String(), entryID.String()).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check schedule entry: %w", err)
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

// PostgresEnrollments resolves class rosters from the enrollments table.
type PostgresEnrollments struct {
	pool *pgxpool.Pool
}

func NewPostgresEnrollments(pool *pgxpool.Pool) *PostgresEnrollments {
	return &PostgresEnrollments{pool: pool}
}

func (s *PostgresEnrollments) StudentsByClass(ctx context.Context, tenant id.TenantID, class id.ClassID) ([]id.StudentID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT student_id FROM enrollments WHERE tenant = $1 AND class_id = $2`,
		tenant.String(), class.String())
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	defer rows.Close()

	var students []id.StudentID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		u, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse student id: %w", err)
		}
		students = append(students, id.StudentID(u))
	}
	return students, rows.Err()
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable) (*Entry, error) {
	var (
		rawID, rawTenant, rawExam, rawSubject, rawClass, rawRoom string
		date                                                     time.Time
		startMin, endMin                                         int
		rawInvs                                                  []string
		entry                                                    Entry
		status                                                   string
	)
	err := row.Scan(&rawID, &rawTenant, &rawExam, &rawSubject, &rawClass, &date,
		&startMin, &endMin, &rawRoom, &rawInvs, &entry.MaxMarks,
		&entry.DurationMinutes, &status, &entry.CommittedAt)
	if err != nil {
		return nil, err
	}

	ids := []struct {
		raw string
		set func(uuid.UUID)
	}{
		{rawID, func(u uuid.UUID) { entry.ID = id.ScheduleID(u) }},
		{rawTenant, func(u uuid.UUID) { entry.Tenant = id.TenantID(u) }},
		{rawExam, func(u uuid.UUID) { entry.ExamID = id.ExamID(u) }},
		{rawSubject, func(u uuid.UUID) { entry.SubjectID = id.SubjectID(u) }},
		{rawClass, func(u uuid.UUID) { entry.ClassID = id.ClassID(u) }},
		{rawRoom, func(u uuid.UUID) { entry.RoomID = id.RoomID(u) }},
	}
	for _, f := range ids {
		u, err := uuid.Parse(f.raw)
		if err != nil {
			return nil, fmt.Errorf("parse id column: %w", err)
		}
		f.set(u)
	}
	for _, raw := range rawInvs {
		u, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse invigilator id: %w", err)
		}
		entry.Invigilators = append(entry.Invigilators, id.InvigilatorID(u))
	}
	entry.Date = id.DateOf(date)
	entry.Start = id.ClockMinutes(startMin)
	entry.End = id.ClockMinutes(endMin)
	entry.Status = EntryStatus(status)
	return &entry, nil
}
