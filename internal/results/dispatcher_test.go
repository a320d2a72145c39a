package results

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "examdesk/pkg/domain"
	"examdesk/pkg/platform/sentinel"
)

type DispatcherSuite struct {
	suite.Suite
	tenant   id.TenantID
	exams    *InMemoryExamStore
	grades   *InMemoryGradeStore
	progress *InMemoryProgressStore
	cache    *InMemoryCache
	notifier *InMemoryNotifier
	pub      *Publisher
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.tenant = id.TenantID(uuid.New())
	s.exams = NewInMemoryExamStore()
	s.grades = NewInMemoryGradeStore()
	s.progress = NewInMemoryProgressStore()
	s.cache = NewInMemoryCache()
	s.notifier = NewInMemoryNotifier()
	s.pub = NewPublisher(s.exams, s.grades, s.progress, s.cache, s.notifier, PublisherConfig{BatchSize: 10})
}

func (s *DispatcherSuite) seedExam() id.ExamID {
	examID := id.ExamID(uuid.New())
	s.exams.Put(&Exam{Tenant: s.tenant, ID: examID, Status: ExamStatusReadyForPublication})
	s.grades.Add(GradeRecord{
		Tenant:        s.tenant,
		ExamID:        examID,
		StudentID:     id.StudentID(uuid.New()),
		SubjectID:     id.SubjectID(uuid.New()),
		MarksObtained: 70,
		TotalMarks:    100,
		GradeLetter:   "B",
		ComputedAt:    time.Now(),
	})
	return examID
}

// TestBacklogRejectsOverflow fills the backlog without draining it: the
// bounded queue absorbs exactly its capacity and rejects the rest.
func (s *DispatcherSuite) TestBacklogRejectsOverflow() {
	d := NewDispatcher(s.pub, 1, 2, nil, nil)

	s.Require().NoError(d.Enqueue(s.tenant, id.ExamID(uuid.New())))
	s.Require().NoError(d.Enqueue(s.tenant, id.ExamID(uuid.New())))

	err := d.Enqueue(s.tenant, id.ExamID(uuid.New()))
	s.Require().ErrorIs(err, sentinel.ErrBacklogFull)
	s.Equal(2, d.Backlog())
}

func (s *DispatcherSuite) TestWorkersDrainJobs() {
	examID := s.seedExam()
	d := NewDispatcher(s.pub, 2, 4, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()

	s.Require().NoError(d.Enqueue(s.tenant, examID))

	s.Require().Eventually(func() bool {
		exam, err := s.exams.FindByID(ctx, s.tenant, examID)
		return err == nil && exam.Status == ExamStatusPublished
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
