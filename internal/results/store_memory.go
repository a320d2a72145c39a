package results

import (
	"context"
	"sort"
	"sync"
	"time"

	id "examdesk/pkg/domain"
	"examdesk/pkg/platform/sentinel"
)

type examKey struct {
	tenant id.TenantID
	exam   id.ExamID
}

// InMemoryExamStore backs tests and single-node deployments.
type InMemoryExamStore struct {
	mu    sync.RWMutex
	exams map[examKey]*Exam
}

func NewInMemoryExamStore() *InMemoryExamStore {
	return &InMemoryExamStore{exams: make(map[examKey]*Exam)}
}

func (s *InMemoryExamStore) Put(exam *Exam) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *exam
	s.exams[examKey{exam.Tenant, exam.ID}] = &copied
}

func (s *InMemoryExamStore) FindByID(_ context.Context, tenant id.TenantID, exam id.ExamID) (*Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.exams[examKey{tenant, exam}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (s *InMemoryExamStore) MarkPublished(_ context.Context, tenant id.TenantID, exam id.ExamID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exams[examKey{tenant, exam}]
	if !ok {
		return sentinel.ErrNotFound
	}
	if e.Status != ExamStatusReadyForPublication {
		return sentinel.ErrInvalidState
	}
	e.Status = ExamStatusPublished
	e.PublishedAt = &at
	return nil
}

// InMemoryGradeStore keeps grade records sorted by studentId per exam.
type InMemoryGradeStore struct {
	mu     sync.RWMutex
	grades map[examKey][]GradeRecord
}

func NewInMemoryGradeStore() *InMemoryGradeStore {
	return &InMemoryGradeStore{grades: make(map[examKey][]GradeRecord)}
}

func (s *InMemoryGradeStore) Add(records ...GradeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range records {
		key := examKey{g.Tenant, g.ExamID}
		s.grades[key] = append(s.grades[key], g)
		sort.Slice(s.grades[key], func(i, j int) bool {
			return s.grades[key][i].StudentID.String() < s.grades[key][j].StudentID.String()
		})
	}
}

func (s *InMemoryGradeStore) Count(_ context.Context, tenant id.TenantID, exam id.ExamID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.grades[examKey{tenant, exam}]), nil
}

func (s *InMemoryGradeStore) ListPage(_ context.Context, tenant id.TenantID, exam id.ExamID, offset, limit int) ([]GradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.grades[examKey{tenant, exam}]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return append([]GradeRecord{}, all[offset:end]...), nil
}

func (s *InMemoryGradeStore) FindByStudent(_ context.Context, tenant id.TenantID, exam id.ExamID, student id.StudentID) (*GradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.grades[examKey{tenant, exam}] {
		g := s.grades[examKey{tenant, exam}][i]
		if g.StudentID == student {
			return &g, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// InMemoryProgressStore implements the claim/advance/finish checkpoint.
type InMemoryProgressStore struct {
	mu       sync.Mutex
	progress map[examKey]*Progress
	now      func() time.Time
}

func NewInMemoryProgressStore() *InMemoryProgressStore {
	return &InMemoryProgressStore{
		progress: make(map[examKey]*Progress),
		now:      time.Now,
	}
}

func (s *InMemoryProgressStore) Claim(_ context.Context, tenant id.TenantID, exam id.ExamID, total int, stallAfter time.Duration) (*Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := examKey{tenant, exam}
	now := s.now()

	p, ok := s.progress[key]
	if !ok {
		p = &Progress{Tenant: tenant, ExamID: exam, TotalRecords: total}
	}
	switch {
	case !ok, p.Status == ProgressFailed:
		// fresh run or retry after failure
	case p.Status == ProgressCompleted:
		return nil, sentinel.ErrInvalidState
	case p.Status == ProgressInProgress && now.Sub(p.UpdatedAt) < stallAfter:
		return nil, sentinel.ErrAlreadyClaimed
	}

	p.Status = ProgressInProgress
	p.TotalRecords = total
	p.UpdatedAt = now
	s.progress[key] = p
	copied := *p
	return &copied, nil
}

func (s *InMemoryProgressStore) Advance(_ context.Context, tenant id.TenantID, exam id.ExamID, processedOffset int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[examKey{tenant, exam}]
	if !ok {
		return sentinel.ErrNotFound
	}
	p.ProcessedOffset = processedOffset
	p.UpdatedAt = s.now()
	return nil
}

func (s *InMemoryProgressStore) Finish(_ context.Context, tenant id.TenantID, exam id.ExamID, status ProgressStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[examKey{tenant, exam}]
	if !ok {
		return sentinel.ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = s.now()
	return nil
}

func (s *InMemoryProgressStore) Get(_ context.Context, tenant id.TenantID, exam id.ExamID) (*Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[examKey{tenant, exam}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *p
	return &copied, nil
}
