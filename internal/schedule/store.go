package schedule

import (
	"context"

	id "examdesk/pkg/domain"
)

// ScheduleReader is the read-only surface the conflict engine needs. Every
// query is scoped to one tenant; crossing tenant boundaries is a contract
// violation, not a filter the caller may forget.
type ScheduleReader interface {
	// QueryByRoomAndDate returns committed entries in the room on the date.
	QueryByRoomAndDate(ctx context.Context, tenant id.TenantID, room id.RoomID, date id.Date) ([]Entry, error)
	// QueryByStudentsAndDate returns committed entries on the date whose
	// class enrollment intersects the given student set.
	QueryByStudentsAndDate(ctx context.Context, tenant id.TenantID, students []id.StudentID, date id.Date) ([]Entry, error)
	// QueryByInvigilatorsAndDate returns committed entries on the date whose
	// invigilator set intersects the given set.
	QueryByInvigilatorsAndDate(ctx context.Context, tenant id.TenantID, invigilators []id.InvigilatorID, date id.Date) ([]Entry, error)
}

// EnrollmentReader resolves a class to its enrolled students.
type EnrollmentReader interface {
	StudentsByClass(ctx context.Context, tenant id.TenantID, class id.ClassID) ([]id.StudentID, error)
}

// Store is the durable schedule store. Commit is the final arbiter against
// the check-then-act race: it re-checks room overlap under its own write
// serialization and returns sentinel.ErrConflict if validation went stale.
type Store interface {
	ScheduleReader

	FindByID(ctx context.Context, tenant id.TenantID, entryID id.ScheduleID) (*Entry, error)
	// Commit atomically writes the entry. When supersedes is non-nil, the
	// superseded entry is retired in the same write; no state where both are
	// active is observable.
	Commit(ctx context.Context, entry *Entry, supersedes id.ScheduleID) error
	// Cancel retires an entry; cancelled entries no longer participate in
	// conflict detection.
	Cancel(ctx context.Context, tenant id.TenantID, entryID id.ScheduleID) error
}
