package schedule

import (
	"time"

	id "examdesk/pkg/domain"
	dErrors "examdesk/pkg/domain-errors"
)

// EntryStatus tracks the lifecycle of a committed schedule entry. Entries are
// immutable once committed; they leave the timetable only by cancellation or
// by being superseded through a reschedule.
type EntryStatus string

const (
	EntryStatusCommitted  EntryStatus = "committed"
	EntryStatusCancelled  EntryStatus = "cancelled"
	EntryStatusSuperseded EntryStatus = "superseded"
)

// Entry is one exam sitting: a class takes a subject exam in a room, on a
// date, over a half-open time interval, watched by a set of invigilators.
type Entry struct {
	ID              id.ScheduleID
	Tenant          id.TenantID
	ExamID          id.ExamID
	SubjectID       id.SubjectID
	ClassID         id.ClassID
	Date            id.Date
	Start           id.ClockMinutes
	End             id.ClockMinutes
	RoomID          id.RoomID
	Invigilators    []id.InvigilatorID
	MaxMarks        int
	DurationMinutes int
	Status          EntryStatus
	CommittedAt     time.Time
}

// Validate checks the structural invariants of a candidate entry before any
// conflict detection runs.
func (e *Entry) Validate() error {
	switch {
	case e.Tenant.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "tenant is required")
	case e.ExamID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "exam is required")
	case e.SubjectID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "subject is required")
	case e.ClassID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "class is required")
	case e.RoomID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "room is required")
	case e.Date.IsZero():
		return dErrors.New(dErrors.CodeInvalidInput, "date is required")
	case e.Start >= e.End:
		return dErrors.New(dErrors.CodeInvalidInput, "start time must be before end time")
	case len(e.Invigilators) == 0:
		return dErrors.New(dErrors.CodeInvalidInput, "at least one invigilator is required")
	case e.MaxMarks <= 0:
		return dErrors.New(dErrors.CodeInvalidInput, "max marks must be positive")
	}
	for _, inv := range e.Invigilators {
		if inv.IsNil() {
			return dErrors.New(dErrors.CodeInvalidInput, "invigilator id must not be nil")
		}
	}
	if e.DurationMinutes != 0 && e.DurationMinutes != int(e.End-e.Start) {
		return dErrors.New(dErrors.CodeInvalidInput, "duration does not match time interval")
	}
	return nil
}

// Overlaps reports whether two entries clash in time on the same date under
// the half-open rule: back-to-back sittings at the same boundary do not
// overlap.
func (e *Entry) Overlaps(other *Entry) bool {
	if e.Date != other.Date {
		return false
	}
	return id.Overlaps(e.Start, e.End, other.Start, other.End)
}

// Dimension is one independent axis along which two sittings can clash.
type Dimension string

const (
	DimensionRoom        Dimension = "room"
	DimensionStudent     Dimension = "student"
	DimensionInvigilator Dimension = "invigilator"
)

// ConflictReport carries the full per-dimension conflict sets. All dimensions
// are always evaluated; a candidate failing several reports all of them so
// the caller can present complete remediation guidance.
type ConflictReport struct {
	Room        []Entry
	Student     []Entry
	Invigilator []Entry
}

// HasConflicts reports whether any dimension clashed.
func (r ConflictReport) HasConflicts() bool {
	return len(r.Room) > 0 || len(r.Student) > 0 || len(r.Invigilator) > 0
}

// Dimensions lists the clashing dimensions, in fixed order.
func (r ConflictReport) Dimensions() []Dimension {
	var dims []Dimension
	if len(r.Room) > 0 {
		dims = append(dims, DimensionRoom)
	}
	if len(r.Student) > 0 {
		dims = append(dims, DimensionStudent)
	}
	if len(r.Invigilator) > 0 {
		dims = append(dims, DimensionInvigilator)
	}
	return dims
}

// DecisionStatus is the outcome of one scheduling submission.
type DecisionStatus string

const (
	DecisionCommitted DecisionStatus = "committed"
	DecisionRejected  DecisionStatus = "rejected"
)

// Decision is returned to the caller for both outcomes. On rejection the
// conflict sets are passed through verbatim, never collapsed into a generic
// failure.
type Decision struct {
	Status    DecisionStatus
	Entry     *Entry
	Conflicts ConflictReport
}
