package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "examdesk/pkg/domain"
)

type EngineSuite struct {
	suite.Suite
	ctx         context.Context
	tenant      id.TenantID
	store       *InMemoryStore
	enrollments *InMemoryEnrollments
	engine      *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.tenant = id.TenantID(uuid.New())
	s.enrollments = NewInMemoryEnrollments()
	s.store = NewInMemoryStore(s.enrollments)
	s.engine = NewEngine(s.store, s.enrollments)
}

func (s *EngineSuite) date(day int) id.Date {
	return id.Date{Year: 2025, Month: time.December, Day: day}
}

func (s *EngineSuite) entry(date id.Date, start, end string, mutate func(*Entry)) *Entry {
	st, err := id.ParseClock(start)
	s.Require().NoError(err)
	en, err := id.ParseClock(end)
	s.Require().NoError(err)
	e := &Entry{
		ID:           id.ScheduleID(uuid.New()),
		Tenant:       s.tenant,
		ExamID:       id.ExamID(uuid.New()),
		SubjectID:    id.SubjectID(uuid.New()),
		ClassID:      id.ClassID(uuid.New()),
		Date:         date,
		Start:        st,
		End:          en,
		RoomID:       id.RoomID(uuid.New()),
		Invigilators: []id.InvigilatorID{id.InvigilatorID(uuid.New())},
		MaxMarks:     100,
		CommittedAt:  time.Now(),
	}
	if mutate != nil {
		mutate(e)
	}
	return e
}

func (s *EngineSuite) commit(e *Entry) {
	s.Require().NoError(s.store.Commit(s.ctx, e, id.ScheduleID(uuid.Nil)))
}

func (s *EngineSuite) TestRoomDimension() {
	room := id.RoomID(uuid.New())

	existing := s.entry(s.date(10), "10:30", "11:30", func(e *Entry) { e.RoomID = room })
	s.commit(existing)

	s.Run("overlapping interval in same room conflicts", func() {
		candidate := s.entry(s.date(10), "10:00", "11:00", func(e *Entry) { e.RoomID = room })
		report, err := s.engine.Detect(s.ctx, s.tenant, candidate, id.ScheduleID(uuid.Nil))
		s.Require().NoError(err)
		s.Require().Len(report.Room, 1)
		s.Equal(existing.ID, report.Room[0].ID)
		s.Empty(report.Student)
		s.Empty(report.Invigilator)
	})

	s.Run("back-to-back at the boundary does not conflict", func() {
		candidate := s.entry(s.date(10), "11:30", "12:30", func(e *Entry) { e.RoomID = room })
		report, err := s.engine.Detect(s.ctx, s.tenant, candidate, id.ScheduleID(uuid.Nil))
		s.Require().NoError(err)
		s.False(report.HasConflicts())
	})

	s.Run("same interval different date does not conflict", func() {
		candidate := s.entry(s.date(11), "10:00", "11:00", func(e *Entry) { e.RoomID = room })
		report, err := s.engine.Detect(s.ctx, s.tenant, candidate, id.ScheduleID(uuid.Nil))
		s.Require().NoError(err)
		s.False(report.HasConflicts())
	})

	s.Run("same interval different room does not conflict", func() {
		candidate := s.entry(s.date(10), "10:00", "11:00", nil)
		report, err := s.engine.Detect(s.ctx, s.tenant, candidate, id.ScheduleID(uuid.Nil))
		s.Require().NoError(err)
		s.False(report.HasConflicts())
	})
}

func (s *EngineSuite) TestStudentDimensionCrossClass() {
	shared := id.StudentID(uuid.New())
	classA := id.ClassID(uuid.New())
	classB := id.ClassID(uuid.New())

	// The shared student sits in both classes: the elective overlap case.
	s.enrollments.Enroll(s.tenant, classA, shared, id.StudentID(uuid.New()))
	s.enrollments.Enroll(s.tenant, classB, shared, id.StudentID(uuid.New()))

	existing := s.entry(s.date(12), "09:00", "10:00", func(e *Entry) { e.ClassID = classA })
	s.commit(existing)

	s.Run("shared student across classes conflicts", func() {
		candidate := s.entry(s.date(12), "09:30", "10:30", func(e *Entry) { e.ClassID = classB })
		report, err := s.engine.Detect(s.ctx, s.tenant, candidate, id.ScheduleID(uuid.Nil))
		s.Require().NoError(err)
		s.Require().Len(report.Student, 1)
		s.Equal(existing.ID, report.Student[0].ID)
		s.Empty(report.Room)
		s.Empty(report.Invigilator)
	})

	s.Run("disjoint enrollment does not conflict", func() {
		classC := id.ClassID(uuid.New())
		s.enrollments.Enroll(s.tenant, classC, id.StudentID(uuid.New()))
		candidate := s.entry(s.date(12), "09:30", "10:30", func(e *Entry) { e.ClassID = classC })
		report, err := s.engine.Detect(s.ctx, s.tenant, candidate, id.ScheduleID(uuid.Nil))
		s.Require().NoError(err)
		s.False(report.HasConflicts())
	})
}

func (s *EngineSuite) TestInvigilatorDimension() {
	inv := id.InvigilatorID(uuid.New())

	existing := s.entry(s.date(13), "14:00", "15:00", func(e *Entry) {
		e.Invigilators = []id.InvigilatorID{inv, id.InvigilatorID(uuid.New())}
	})
	s.commit(existing)

	s.Run("shared invigilator conflicts", func() {
		candidate := s.entry(s.date(13), "14:30", "15:30", func(e *Entry) {
			e.Invigilators = []id.InvigilatorID{inv}
		})
		report, err := s.engine.Detect(s.ctx, s.tenant, candidate, id.ScheduleID(uuid.Nil))
		s.Require().NoError(err)
		s.Require().Len(report.Invigilator, 1)
		s.Equal(existing.ID, report.Invigilator[0].ID)
	})

	s.Run("disjoint invigilators do not conflict", func() {
		candidate := s.entry(s.date(13), "14:30", "15:30", nil)
		report, err := s.engine.Detect(s.ctx, s.tenant, candidate, id.ScheduleID(uuid.Nil))
		s.Require().NoError(err)
		s.False(report.HasConflicts())
	})
}

func (s *EngineSuite) TestAllDimensionsReportedTogether() {
	room := id.RoomID(uuid.New())
	inv := id.InvigilatorID(uuid.New())
	shared := id.StudentID(uuid.New())
	classA := id.ClassID(uuid.New())
	classB := id.ClassID(uuid.New())
	s.enrollments.Enroll(s.tenant, classA, shared)
	s.enrollments.Enroll(s.tenant, classB, shared)

	existing := s.entry(s.date(14), "10:00", "12:00", func(e *Entry) {
		e.RoomID = room
		e.ClassID = classA
		e.Invigilators = []id.InvigilatorID{inv}
	})
	s.commit(existing)

	candidate := s.entry(s.date(14), "11:00", "13:00", func(e *Entry) {
		e.RoomID = room
		e.ClassID = classB
		e.Invigilators = []id.InvigilatorID{inv}
	})
	report, err := s.engine.Detect(s.ctx, s.tenant, candidate, id.ScheduleID(uuid.Nil))
	s.Require().NoError(err)

	// Failing several dimensions reports all of them, never just the first.
	s.Len(report.Room, 1)
	s.Len(report.Student, 1)
	s.Len(report.Invigilator, 1)
	s.ElementsMatch(
		[]Dimension{DimensionRoom, DimensionStudent, DimensionInvigilator},
		report.Dimensions(),
	)
}

func (s *EngineSuite) TestSelfExclusionOnReschedule() {
	room := id.RoomID(uuid.New())
	existing := s.entry(s.date(15), "10:00", "11:00", func(e *Entry) { e.RoomID = room })
	s.commit(existing)

	// Moving the same sitting 30 minutes later must not clash with itself.
	candidate := s.entry(s.date(15), "10:30", "11:30", func(e *Entry) { e.RoomID = room })
	report, err := s.engine.Detect(s.ctx, s.tenant, candidate, existing.ID)
	s.Require().NoError(err)
	s.False(report.HasConflicts())
}

func (s *EngineSuite) TestCancelledEntriesAreIgnored() {
	room := id.RoomID(uuid.New())
	existing := s.entry(s.date(16), "10:00", "11:00", func(e *Entry) { e.RoomID = room })
	s.commit(existing)
	s.Require().NoError(s.store.Cancel(s.ctx, s.tenant, existing.ID))

	candidate := s.entry(s.date(16), "10:00", "11:00", func(e *Entry) { e.RoomID = room })
	report, err := s.engine.Detect(s.ctx, s.tenant, candidate, id.ScheduleID(uuid.Nil))
	s.Require().NoError(err)
	s.False(report.HasConflicts())
}

func (s *EngineSuite) TestTenantIsolation() {
	room := id.RoomID(uuid.New())
	existing := s.entry(s.date(17), "10:00", "11:00", func(e *Entry) { e.RoomID = room })
	s.commit(existing)

	otherTenant := id.TenantID(uuid.New())
	candidate := s.entry(s.date(17), "10:00", "11:00", func(e *Entry) {
		e.Tenant = otherTenant
		e.RoomID = room
	})
	report, err := s.engine.Detect(s.ctx, otherTenant, candidate, id.ScheduleID(uuid.Nil))
	s.Require().NoError(err)
	s.False(report.HasConflicts())
}
