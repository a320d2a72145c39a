package schedule

import (
	"context"
	"sync"

	id "examdesk/pkg/domain"
	"examdesk/pkg/platform/sentinel"
)

// InMemoryStore keeps schedules per tenant behind an RWMutex. It backs unit
// tests and single-node deployments; the postgres store is the production
// implementation.
type InMemoryStore struct {
	mu          sync.RWMutex
	entries     map[id.TenantID]map[id.ScheduleID]*Entry
	enrollments EnrollmentReader
}

func NewInMemoryStore(enrollments EnrollmentReader) *InMemoryStore {
	return &InMemoryStore{
		entries:     make(map[id.TenantID]map[id.ScheduleID]*Entry),
		enrollments: enrollments,
	}
}

func (s *InMemoryStore) QueryByRoomAndDate(_ context.Context, tenant id.TenantID, room id.RoomID, date id.Date) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries[tenant] {
		if e.Status == EntryStatusCommitted && e.RoomID == room && e.Date == date {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *InMemoryStore) QueryByStudentsAndDate(ctx context.Context, tenant id.TenantID, students []id.StudentID, date id.Date) ([]Entry, error) {
	wanted := make(map[id.StudentID]struct{}, len(students))
	for _, st := range students {
		wanted[st] = struct{}{}
	}

	s.mu.RLock()
	candidates := make([]*Entry, 0)
	for _, e := range s.entries[tenant] {
		if e.Status == EntryStatusCommitted && e.Date == date {
			candidates = append(candidates, e)
		}
	}
	s.mu.RUnlock()

	// Enrollment expansion happens outside the lock; the enrollment reader
	// may be a separate store.
	var out []Entry
	for _, e := range candidates {
		enrolled, err := s.enrollments.StudentsByClass(ctx, tenant, e.ClassID)
		if err != nil {
			return nil, err
		}
		for _, st := range enrolled {
			if _, ok := wanted[st]; ok {
				out = append(out, *e)
				break
			}
		}
	}
	return out, nil
}

func (s *InMemoryStore) QueryByInvigilatorsAndDate(_ context.Context, tenant id.TenantID, invigilators []id.InvigilatorID, date id.Date) ([]Entry, error) {
	wanted := make(map[id.InvigilatorID]struct{}, len(invigilators))
	for _, inv := range invigilators {
		wanted[inv] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries[tenant] {
		if e.Status != EntryStatusCommitted || e.Date != date {
			continue
		}
		for _, inv := range e.Invigilators {
			if _, ok := wanted[inv]; ok {
				out = append(out, *e)
				break
			}
		}
	}
	return out, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tenant id.TenantID, entryID id.ScheduleID) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[tenant][entryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

// Commit re-checks room overlap under the write lock, acting as the final
// arbiter when two validations raced.
func (s *InMemoryStore) Commit(_ context.Context, entry *Entry, supersedes id.ScheduleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenantEntries := s.entries[entry.Tenant]
	if tenantEntries == nil {
		tenantEntries = make(map[id.ScheduleID]*Entry)
		s.entries[entry.Tenant] = tenantEntries
	}

	var superseded *Entry
	if !supersedes.IsNil() {
		old, ok := tenantEntries[supersedes]
		if !ok {
			return sentinel.ErrNotFound
		}
		if old.Status != EntryStatusCommitted {
			return sentinel.ErrInvalidState
		}
		superseded = old
	}

	for _, e := range tenantEntries {
		if e.Status != EntryStatusCommitted || e.RoomID != entry.RoomID {
			continue
		}
		if e.ID == supersedes {
			continue
		}
		if entry.Overlaps(e) {
			return sentinel.ErrConflict
		}
	}

	if superseded != nil {
		superseded.Status = EntryStatusSuperseded
	}
	copied := *entry
	copied.Status = EntryStatusCommitted
	tenantEntries[copied.ID] = &copied
	return nil
}

func (s *InMemoryStore) Cancel(_ context.Context, tenant id.TenantID, entryID id.ScheduleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[tenant][entryID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if e.Status != EntryStatusCommitted {
		return sentinel.ErrInvalidState
	}
	e.Status = EntryStatusCancelled
	return nil
}

// InMemoryEnrollments is the memory-backed class roster.
type InMemoryEnrollments struct {
	mu      sync.RWMutex
	classes map[id.TenantID]map[id.ClassID][]id.StudentID
}

func NewInMemoryEnrollments() *InMemoryEnrollments {
	return &InMemoryEnrollments{classes: make(map[id.TenantID]map[id.ClassID][]id.StudentID)}
}

func (s *InMemoryEnrollments) Enroll(tenant id.TenantID, class id.ClassID, students ...id.StudentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.classes[tenant] == nil {
		s.classes[tenant] = make(map[id.ClassID][]id.StudentID)
	}
	s.classes[tenant][class] = append(s.classes[tenant][class], students...)
}

func (s *InMemoryEnrollments) StudentsByClass(_ context.Context, tenant id.TenantID, class id.ClassID) ([]id.StudentID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]id.StudentID{}, s.classes[tenant][class]...), nil
}
