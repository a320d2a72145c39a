package results

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "examdesk/pkg/domain"
	dErrors "examdesk/pkg/domain-errors"
	"examdesk/pkg/platform/sentinel"
)

type PublisherSuite struct {
	suite.Suite
	ctx      context.Context
	tenant   id.TenantID
	examID   id.ExamID
	exams    *InMemoryExamStore
	grades   *InMemoryGradeStore
	progress *InMemoryProgressStore
	cache    *InMemoryCache
	notifier *InMemoryNotifier
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.ctx = context.Background()
	s.tenant = id.TenantID(uuid.New())
	s.examID = id.ExamID(uuid.New())
	s.exams = NewInMemoryExamStore()
	s.grades = NewInMemoryGradeStore()
	s.progress = NewInMemoryProgressStore()
	s.cache = NewInMemoryCache()
	s.notifier = NewInMemoryNotifier()
}

func (s *PublisherSuite) publisher(cfg PublisherConfig) *Publisher {
	return NewPublisher(s.exams, s.grades, s.progress, s.cache, s.notifier, cfg)
}

func (s *PublisherSuite) seedExam(status ExamStatus, records int) {
	s.exams.Put(&Exam{Tenant: s.tenant, ID: s.examID, Status: status})
	for i := 0; i < records; i++ {
		s.grades.Add(GradeRecord{
			Tenant:        s.tenant,
			ExamID:        s.examID,
			StudentID:     id.StudentID(uuid.New()),
			SubjectID:     id.SubjectID(uuid.New()),
			MarksObtained: float64(50 + i*10),
			TotalMarks:    100,
			GradeLetter:   "B",
			ComputedAt:    time.Now(),
		})
	}
}

func (s *PublisherSuite) TestPublishAllRecords() {
	s.seedExam(ExamStatusReadyForPublication, 3)
	p := s.publisher(PublisherConfig{BatchSize: 2})

	report, err := p.Publish(s.ctx, s.tenant, s.examID)
	s.Require().NoError(err)
	s.Equal(3, report.Attempted)
	s.Equal(3, report.Succeeded)
	s.Equal(2, report.Batches)
	s.False(report.Resumed)

	s.Run("every record is cached and announced", func() {
		s.Equal(3, s.cache.Len())
		s.Len(s.notifier.Events(), 3)
	})

	s.Run("exam transitions to published", func() {
		exam, err := s.exams.FindByID(s.ctx, s.tenant, s.examID)
		s.Require().NoError(err)
		s.Equal(ExamStatusPublished, exam.Status)
		s.NotNil(exam.PublishedAt)
	})

	s.Run("checkpoint completes at the full offset", func() {
		prog, err := s.progress.Get(s.ctx, s.tenant, s.examID)
		s.Require().NoError(err)
		s.Equal(ProgressCompleted, prog.Status)
		s.Equal(3, prog.ProcessedOffset)
		s.Equal(3, prog.TotalRecords)
	})

	s.Run("events carry stable identities and categories", func() {
		for _, pub := range s.notifier.Events() {
			var event Event
			s.Require().NoError(json.Unmarshal(pub.Payload, &event))
			s.Equal(event.ID, pub.Key)
			s.Equal(s.tenant.String(), event.Tenant)
			s.NotEmpty(event.Category)
		}
	})
}

func (s *PublisherSuite) TestPublishRequiresReadyState() {
	p := s.publisher(PublisherConfig{})

	s.Run("draft exam", func() {
		s.seedExam(ExamStatusDraft, 1)
		_, err := p.Publish(s.ctx, s.tenant, s.examID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("already published exam performs no work", func() {
		s.exams.Put(&Exam{Tenant: s.tenant, ID: s.examID, Status: ExamStatusPublished})
		_, err := p.Publish(s.ctx, s.tenant, s.examID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		s.Empty(s.notifier.Events())
	})

	s.Run("unknown exam", func() {
		_, err := p.Publish(s.ctx, s.tenant, id.ExamID(uuid.New()))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// TestResumeAfterTransientFailure drives a run into retry exhaustion after
// the first batch, then re-runs: the second run picks up at the checkpoint
// and the first batch is never reprocessed.
func (s *PublisherSuite) TestResumeAfterTransientFailure() {
	s.seedExam(ExamStatusReadyForPublication, 5)
	p := s.publisher(PublisherConfig{
		BatchSize:     2,
		RetryAttempts: 2,
		RetryBackoff:  time.Millisecond,
	})

	// First batch of 2 lands, then both configured attempts at the second
	// batch fail.
	s.notifier.FailAfter(2, 2, sentinel.ErrUnavailable)
	report, err := p.Publish(s.ctx, s.tenant, s.examID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(2, report.Succeeded)
	s.Equal(4, report.Attempted)

	prog, err := s.progress.Get(s.ctx, s.tenant, s.examID)
	s.Require().NoError(err)
	s.Equal(ProgressFailed, prog.Status)
	s.Equal(2, prog.ProcessedOffset)

	eventsBefore := len(s.notifier.Events())
	s.Equal(2, eventsBefore)

	s.Run("second run resumes and finishes", func() {
		report, err := p.Publish(s.ctx, s.tenant, s.examID)
		s.Require().NoError(err)
		s.True(report.Resumed)
		s.Equal(3, report.Succeeded)

		exam, err := s.exams.FindByID(s.ctx, s.tenant, s.examID)
		s.Require().NoError(err)
		s.Equal(ExamStatusPublished, exam.Status)

		// 2 from the first run, 3 from the resumed one: nothing re-emitted.
		s.Len(s.notifier.Events(), 5)
	})
}

func (s *PublisherSuite) TestNonTransientErrorFailsWithoutRetry() {
	s.seedExam(ExamStatusReadyForPublication, 2)
	p := s.publisher(PublisherConfig{BatchSize: 2, RetryAttempts: 3, RetryBackoff: time.Millisecond})

	s.notifier.FailNext(1, errors.New("schema rejected"))
	_, err := p.Publish(s.ctx, s.tenant, s.examID)
	s.Require().Error(err)

	// A single fault was armed; had the batch been retried it would have
	// succeeded on the second attempt.
	s.Empty(s.notifier.Events())

	prog, progErr := s.progress.Get(s.ctx, s.tenant, s.examID)
	s.Require().NoError(progErr)
	s.Equal(ProgressFailed, prog.Status)
}

func (s *PublisherSuite) TestTransientErrorIsRetriedWithinRun() {
	s.seedExam(ExamStatusReadyForPublication, 2)
	p := s.publisher(PublisherConfig{BatchSize: 2, RetryAttempts: 3, RetryBackoff: time.Millisecond})

	s.notifier.FailNext(1, sentinel.ErrUnavailable)
	report, err := p.Publish(s.ctx, s.tenant, s.examID)
	s.Require().NoError(err)
	s.Equal(2, report.Succeeded)
	s.Len(s.notifier.Events(), 2)
}

func (s *PublisherSuite) TestLiveClaimBlocksSecondRun() {
	s.seedExam(ExamStatusReadyForPublication, 1)
	p := s.publisher(PublisherConfig{})

	_, err := s.progress.Claim(s.ctx, s.tenant, s.examID, 1, time.Minute)
	s.Require().NoError(err)

	_, err = p.Publish(s.ctx, s.tenant, s.examID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *PublisherSuite) TestStalledRunIsTakenOver() {
	s.seedExam(ExamStatusReadyForPublication, 3)
	p := s.publisher(PublisherConfig{BatchSize: 2, StallAfter: time.Minute})

	// A crashed run left an InProgress checkpoint at offset 2, long ago.
	_, err := s.progress.Claim(s.ctx, s.tenant, s.examID, 3, time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.progress.Advance(s.ctx, s.tenant, s.examID, 2))
	s.progress.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	report, err := p.Publish(s.ctx, s.tenant, s.examID)
	s.Require().NoError(err)
	s.True(report.Resumed)
	s.Equal(1, report.Succeeded)
	s.Len(s.notifier.Events(), 1)
}

func (s *PublisherSuite) TestEmptyExamPublishesImmediately() {
	s.seedExam(ExamStatusReadyForPublication, 0)
	p := s.publisher(PublisherConfig{})

	report, err := p.Publish(s.ctx, s.tenant, s.examID)
	s.Require().NoError(err)
	s.Equal(0, report.Attempted)
	s.Equal(0, report.Batches)

	exam, err := s.exams.FindByID(s.ctx, s.tenant, s.examID)
	s.Require().NoError(err)
	s.Equal(ExamStatusPublished, exam.Status)
}
