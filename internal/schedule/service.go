package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"examdesk/internal/schedule/metrics"
	id "examdesk/pkg/domain"
	dErrors "examdesk/pkg/domain-errors"
	"examdesk/pkg/platform/sentinel"
)

// Service owns the accept/reject decision for schedule submissions. It runs
// conflict detection, serializes commits per (tenant, room, date), and lets
// the store's own overlap check stand as the final arbiter.
type Service struct {
	store   Store
	engine  *Engine
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService builds the exam scheduler.
func NewService(store Store, enrollments EnrollmentReader, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		engine:  NewEngine(store, enrollments),
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("examdesk/schedule"),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Request is one schedule submission.
type Request struct {
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
}

// Schedule validates a candidate and commits it if no dimension conflicts.
// Rejections are a Decision, not an error: the caller receives the verbatim
// per-dimension conflict sets.
func (s *Service) Schedule(ctx context.Context, req Request) (*Decision, error) {
	return s.schedule(ctx, req, id.ScheduleID(uuid.Nil))
}

// Reschedule re-runs the same validation path with the existing entry
// excluded from comparison, then supersedes it atomically with the new entry.
func (s *Service) Reschedule(ctx context.Context, tenant id.TenantID, existingID id.ScheduleID, req Request) (*Decision, error) {
	if req.Tenant != tenant {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant mismatch")
	}
	if _, err := s.store.FindByID(ctx, tenant, existingID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "schedule entry not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load schedule entry", err)
	}
	return s.schedule(ctx, req, existingID)
}

// Cancel retires a committed entry.
func (s *Service) Cancel(ctx context.Context, tenant id.TenantID, entryID id.ScheduleID) error {
	err := s.store.Cancel(ctx, tenant, entryID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "schedule entry not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvalidState, "schedule entry is not active")
	default:
		return dErrors.Wrap(dErrors.CodeInternal, "failed to cancel schedule entry", err)
	}
}

// Find returns one entry.
func (s *Service) Find(ctx context.Context, tenant id.TenantID, entryID id.ScheduleID) (*Entry, error) {
	entry, err := s.store.FindByID(ctx, tenant, entryID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "schedule entry not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load schedule entry", err)
	}
	return entry, nil
}

func (s *Service) schedule(ctx context.Context, req Request, supersedes id.ScheduleID) (*Decision, error) {
	ctx, span := s.tracer.Start(ctx, "schedule.decide")
	defer span.End()

	entry := &Entry{
		ID:              id.ScheduleID(uuid.New()),
		Tenant:          req.Tenant,
		ExamID:          req.ExamID,
		SubjectID:       req.SubjectID,
		ClassID:         req.ClassID,
		Date:            req.Date,
		Start:           req.Start,
		End:             req.End,
		RoomID:          req.RoomID,
		Invigilators:    req.Invigilators,
		MaxMarks:        req.MaxMarks,
		DurationMinutes: req.DurationMinutes,
		CommittedAt:     time.Now().UTC(),
	}
	if entry.DurationMinutes == 0 {
		entry.DurationMinutes = int(entry.End - entry.Start)
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	// Serialize the validate-and-commit window per tenant/room/date so two
	// submissions for the same room cannot both validate against a stale
	// conflict set. The store re-checks overlap on commit regardless.
	unlock := s.lockResource(entry.Tenant, entry.RoomID, entry.Date)
	defer unlock()

	report, err := s.detect(ctx, entry, supersedes)
	if err != nil {
		return nil, err
	}
	if report.HasConflicts() {
		return s.reject(ctx, entry, report), nil
	}

	if err := s.store.Commit(ctx, entry, supersedes); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			// Validation went stale between detect and commit. Re-run
			// detection so the caller still gets full per-dimension detail.
			report, derr := s.detect(ctx, entry, supersedes)
			if derr != nil {
				return nil, derr
			}
			return s.reject(ctx, entry, report), nil
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "superseded entry not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeInvalidState, "superseded entry is not active")
		default:
			return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to commit schedule entry", err)
		}
	}

	s.metrics.IncDecision(string(DecisionCommitted))
	s.logger.InfoContext(ctx, "schedule entry committed",
		"tenant", entry.Tenant.String(),
		"entry_id", entry.ID.String(),
		"exam_id", entry.ExamID.String(),
		"room_id", entry.RoomID.String(),
		"date", entry.Date.String(),
	)
	return &Decision{Status: DecisionCommitted, Entry: entry}, nil
}

func (s *Service) detect(ctx context.Context, entry *Entry, supersedes id.ScheduleID) (ConflictReport, error) {
	start := time.Now()
	report, err := s.engine.Detect(ctx, entry.Tenant, entry, supersedes)
	s.metrics.ObserveDetect(time.Since(start))
	if err != nil {
		return ConflictReport{}, dErrors.Wrap(dErrors.CodeInternal, "conflict detection failed", err)
	}
	return report, nil
}

func (s *Service) reject(ctx context.Context, entry *Entry, report ConflictReport) *Decision {
	s.metrics.IncDecision(string(DecisionRejected))
	for _, dim := range report.Dimensions() {
		s.metrics.IncConflict(string(dim))
	}
	s.logger.InfoContext(ctx, "schedule entry rejected",
		"tenant", entry.Tenant.String(),
		"exam_id", entry.ExamID.String(),
		"room_id", entry.RoomID.String(),
		"date", entry.Date.String(),
		"dimensions", fmt.Sprintf("%v", report.Dimensions()),
	)
	return &Decision{Status: DecisionRejected, Entry: entry, Conflicts: report}
}

func (s *Service) lockResource(tenant id.TenantID, room id.RoomID, date id.Date) func() {
	key := tenant.String() + "|" + room.String() + "|" + date.String()
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}
