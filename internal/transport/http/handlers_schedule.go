package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"examdesk/internal/schedule"
	"examdesk/internal/transport/http/shared"
	id "examdesk/pkg/domain"
	dErrors "examdesk/pkg/domain-errors"
)

// Scheduler defines the scheduling operations the transport needs.
type Scheduler interface {
	Schedule(ctx context.Context, req schedule.Request) (*schedule.Decision, error)
	Reschedule(ctx context.Context, tenant id.TenantID, existing id.ScheduleID, req schedule.Request) (*schedule.Decision, error)
	Cancel(ctx context.Context, tenant id.TenantID, entry id.ScheduleID) error
	Find(ctx context.Context, tenant id.TenantID, entry id.ScheduleID) (*schedule.Entry, error)
}

// ScheduleHandler exposes the exam timetable endpoints.
type ScheduleHandler struct {
	scheduler Scheduler
	logger    *slog.Logger
}

func NewScheduleHandler(scheduler Scheduler, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{scheduler: scheduler, logger: logger}
}

// Register registers the schedule routes with the chi router.
func (h *ScheduleHandler) Register(r chi.Router) {
	r.Post("/schedules", h.handleSchedule)
	r.Get("/schedules/{scheduleID}", h.handleGet)
	r.Post("/schedules/{scheduleID}/reschedule", h.handleReschedule)
	r.Delete("/schedules/{scheduleID}", h.handleCancel)
}

type scheduleRequest struct {
	ExamID          string   `json:"exam_id"`
	SubjectID       string   `json:"subject_id"`
	ClassID         string   `json:"class_id"`
	Date            string   `json:"date"`
	Start           string   `json:"start"`
	End             string   `json:"end"`
	RoomID          string   `json:"room_id"`
	Invigilators    []string `json:"invigilators"`
	MaxMarks        int      `json:"max_marks"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
}

type entryResponse struct {
	ID              string   `json:"id"`
	ExamID          string   `json:"exam_id"`
	SubjectID       string   `json:"subject_id"`
	ClassID         string   `json:"class_id"`
	Date            string   `json:"date"`
	Start           string   `json:"start"`
	End             string   `json:"end"`
	RoomID          string   `json:"room_id"`
	Invigilators    []string `json:"invigilators"`
	MaxMarks        int      `json:"max_marks"`
	DurationMinutes int      `json:"duration_minutes"`
	Status          string   `json:"status"`
}

type decisionResponse struct {
	Status    string         `json:"status"`
	Entry     *entryResponse `json:"entry,omitempty"`
	Conflicts *conflictsBody `json:"conflicts,omitempty"`
}

type conflictsBody struct {
	Room        []entryResponse `json:"room,omitempty"`
	Student     []entryResponse `json:"student,omitempty"`
	Invigilator []entryResponse `json:"invigilator,omitempty"`
}

func (req *scheduleRequest) toDomain(tenant id.TenantID) (schedule.Request, error) {
	out := schedule.Request{
		Tenant:          tenant,
		MaxMarks:        req.MaxMarks,
		DurationMinutes: req.DurationMinutes,
	}
	var err error
	if out.ExamID, err = id.ParseExamID(req.ExamID); err != nil {
		return out, err
	}
	if out.SubjectID, err = id.ParseSubjectID(req.SubjectID); err != nil {
		return out, err
	}
	if out.ClassID, err = id.ParseClassID(req.ClassID); err != nil {
		return out, err
	}
	if out.RoomID, err = id.ParseRoomID(req.RoomID); err != nil {
		return out, err
	}
	if out.Date, err = id.ParseDate(req.Date); err != nil {
		return out, err
	}
	if out.Start, err = id.ParseClock(req.Start); err != nil {
		return out, err
	}
	if out.End, err = id.ParseClock(req.End); err != nil {
		return out, err
	}
	for _, raw := range req.Invigilators {
		inv, err := id.ParseInvigilatorID(raw)
		if err != nil {
			return out, err
		}
		out.Invigilators = append(out.Invigilators, inv)
	}
	return out, nil
}

func toEntryResponse(e *schedule.Entry) *entryResponse {
	invs := make([]string, len(e.Invigilators))
	for i, inv := range e.Invigilators {
		invs[i] = inv.String()
	}
	return &entryResponse{
		ID:              e.ID.String(),
		ExamID:          e.ExamID.String(),
		SubjectID:       e.SubjectID.String(),
		ClassID:         e.ClassID.String(),
		Date:            e.Date.String(),
		Start:           e.Start.String(),
		End:             e.End.String(),
		RoomID:          e.RoomID.String(),
		Invigilators:    invs,
		MaxMarks:        e.MaxMarks,
		DurationMinutes: e.DurationMinutes,
		Status:          string(e.Status),
	}
}

func toDecisionResponse(d *schedule.Decision) decisionResponse {
	resp := decisionResponse{Status: string(d.Status)}
	if d.Entry != nil {
		resp.Entry = toEntryResponse(d.Entry)
	}
	if d.Conflicts.HasConflicts() {
		body := &conflictsBody{}
		for i := range d.Conflicts.Room {
			body.Room = append(body.Room, *toEntryResponse(&d.Conflicts.Room[i]))
		}
		for i := range d.Conflicts.Student {
			body.Student = append(body.Student, *toEntryResponse(&d.Conflicts.Student[i]))
		}
		for i := range d.Conflicts.Invigilator {
			body.Invigilator = append(body.Invigilator, *toEntryResponse(&d.Conflicts.Invigilator[i]))
		}
		resp.Conflicts = body
	}
	return resp
}

func (h *ScheduleHandler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, err := shared.TenantFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var body scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req, err := body.toDomain(tenant)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	decision, err := h.scheduler.Schedule(ctx, req)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	h.writeDecision(w, decision)
}

func (h *ScheduleHandler) handleReschedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, err := shared.TenantFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	entryID, err := id.ParseScheduleID(chi.URLParam(r, "scheduleID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var body scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req, err := body.toDomain(tenant)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	decision, err := h.scheduler.Reschedule(ctx, tenant, entryID, req)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	h.writeDecision(w, decision)
}

func (h *ScheduleHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	entryID, err := id.ParseScheduleID(chi.URLParam(r, "scheduleID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.scheduler.Cancel(r.Context(), tenant, entryID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	entryID, err := id.ParseScheduleID(chi.URLParam(r, "scheduleID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	entry, err := h.scheduler.Find(r.Context(), tenant, entryID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toEntryResponse(entry))
}

// writeDecision maps commit to 201 and rejection to 409, with the full
// per-dimension conflict sets in the body.
func (h *ScheduleHandler) writeDecision(w http.ResponseWriter, d *schedule.Decision) {
	status := http.StatusCreated
	if d.Status == schedule.DecisionRejected {
		status = http.StatusConflict
	}
	shared.WriteJSON(w, status, toDecisionResponse(d))
}
