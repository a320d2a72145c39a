package results

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "examdesk/pkg/domain"
	dErrors "examdesk/pkg/domain-errors"
)

type ReaderSuite struct {
	suite.Suite
	ctx     context.Context
	tenant  id.TenantID
	examID  id.ExamID
	student id.StudentID
	exams   *InMemoryExamStore
	grades  *InMemoryGradeStore
	cache   *InMemoryCache
	reader  *Reader
}

func TestReaderSuite(t *testing.T) {
	suite.Run(t, new(ReaderSuite))
}

func (s *ReaderSuite) SetupTest() {
	s.ctx = context.Background()
	s.tenant = id.TenantID(uuid.New())
	s.examID = id.ExamID(uuid.New())
	s.student = id.StudentID(uuid.New())
	s.exams = NewInMemoryExamStore()
	s.grades = NewInMemoryGradeStore()
	s.cache = NewInMemoryCache()
	s.reader = NewReader(s.exams, s.grades, s.cache, time.Hour, nil, nil)
}

func (s *ReaderSuite) seed(status ExamStatus) {
	s.exams.Put(&Exam{Tenant: s.tenant, ID: s.examID, Status: status})
	s.grades.Add(GradeRecord{
		Tenant:        s.tenant,
		ExamID:        s.examID,
		StudentID:     s.student,
		SubjectID:     id.SubjectID(uuid.New()),
		MarksObtained: 92,
		TotalMarks:    100,
		GradeLetter:   "A",
		ComputedAt:    time.Now(),
	})
}

func (s *ReaderSuite) TestCacheMissFallsBackAndRewarms() {
	s.seed(ExamStatusPublished)
	s.Require().Equal(0, s.cache.Len())

	result, err := s.reader.Result(s.ctx, s.tenant, s.examID, s.student)
	s.Require().NoError(err)
	s.Equal(GradeExcellent, result.Category)
	s.Equal("A", result.GradeLetter)

	s.Run("the fallback read warms the cache", func() {
		s.Equal(1, s.cache.Len())
		cached, err := s.cache.Get(s.ctx, s.tenant, s.examID, s.student)
		s.Require().NoError(err)
		s.Equal(result.StudentID, cached.StudentID)
	})
}

func (s *ReaderSuite) TestCacheHitSkipsStore() {
	s.seed(ExamStatusPublished)
	warmed := StudentResult{
		Tenant:      s.tenant.String(),
		ExamID:      s.examID.String(),
		StudentID:   s.student.String(),
		GradeLetter: "A+",
		Category:    GradeExcellent,
	}
	s.Require().NoError(s.cache.Set(s.ctx, warmed, time.Hour))

	result, err := s.reader.Result(s.ctx, s.tenant, s.examID, s.student)
	s.Require().NoError(err)
	s.Equal("A+", result.GradeLetter)
}

func (s *ReaderSuite) TestUnpublishedExamHidesResults() {
	s.seed(ExamStatusReadyForPublication)

	_, err := s.reader.Result(s.ctx, s.tenant, s.examID, s.student)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Equal(0, s.cache.Len())
}

func (s *ReaderSuite) TestUnknownStudent() {
	s.seed(ExamStatusPublished)

	_, err := s.reader.Result(s.ctx, s.tenant, s.examID, id.StudentID(uuid.New()))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ReaderSuite) TestTenantIsolation() {
	s.seed(ExamStatusPublished)

	_, err := s.reader.Result(s.ctx, id.TenantID(uuid.New()), s.examID, s.student)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
