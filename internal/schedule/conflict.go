package schedule

import (
	"context"

	"golang.org/x/sync/errgroup"

	id "examdesk/pkg/domain"
)

// Engine detects scheduling conflicts across the three resource dimensions.
// It performs no writes and raises no side effects, so it is safe to call
// speculatively, repeatedly, and with unbounded concurrency.
type Engine struct {
	schedules   ScheduleReader
	enrollments EnrollmentReader
}

// NewEngine builds a conflict detection engine over read-only ports.
func NewEngine(schedules ScheduleReader, enrollments EnrollmentReader) *Engine {
	return &Engine{schedules: schedules, enrollments: enrollments}
}

// Detect returns the conflicting entries per dimension for a candidate.
// exclude names an entry never compared against the candidate, so a
// reschedule is not reported as clashing with the entry it replaces. All
// three dimension checks run unconditionally; none short-circuits another.
func (e *Engine) Detect(ctx context.Context, tenant id.TenantID, candidate *Entry, exclude id.ScheduleID) (ConflictReport, error) {
	var report ConflictReport

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		existing, err := e.schedules.QueryByRoomAndDate(ctx, tenant, candidate.RoomID, candidate.Date)
		if err != nil {
			return err
		}
		report.Room = e.overlapping(candidate, existing, exclude)
		return nil
	})

	g.Go(func() error {
		// The candidate's class is expanded to its enrolled students and the
		// query matches any entry on the date sharing one of them, so
		// cross-class elective overlap is caught, not just same-class clashes.
		students, err := e.enrollments.StudentsByClass(ctx, tenant, candidate.ClassID)
		if err != nil {
			return err
		}
		existing, err := e.schedules.QueryByStudentsAndDate(ctx, tenant, students, candidate.Date)
		if err != nil {
			return err
		}
		report.Student = e.overlapping(candidate, existing, exclude)
		return nil
	})

	g.Go(func() error {
		existing, err := e.schedules.QueryByInvigilatorsAndDate(ctx, tenant, candidate.Invigilators, candidate.Date)
		if err != nil {
			return err
		}
		report.Invigilator = e.overlapping(candidate, existing, exclude)
		return nil
	})

	if err := g.Wait(); err != nil {
		return ConflictReport{}, err
	}
	return report, nil
}

func (e *Engine) overlapping(candidate *Entry, existing []Entry, exclude id.ScheduleID) []Entry {
	var out []Entry
	for i := range existing {
		other := &existing[i]
		if other.ID == candidate.ID || (!exclude.IsNil() && other.ID == exclude) {
			continue
		}
		if other.Status != EntryStatusCommitted {
			continue
		}
		if candidate.Overlaps(other) {
			out = append(out, *other)
		}
	}
	return out
}
