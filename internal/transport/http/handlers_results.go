package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"examdesk/internal/results"
	"examdesk/internal/transport/http/shared"
	id "examdesk/pkg/domain"
	dErrors "examdesk/pkg/domain-errors"
	"examdesk/pkg/platform/sentinel"
)

// ResultReader serves single-student result lookups.
type ResultReader interface {
	Result(ctx context.Context, tenant id.TenantID, exam id.ExamID, student id.StudentID) (*results.StudentResult, error)
}

// PublicationStatus reports the checkpoint of a publication run.
type PublicationStatus interface {
	Status(ctx context.Context, tenant id.TenantID, exam id.ExamID) (*results.Progress, error)
}

// Enqueuer accepts publication jobs, or rejects them under backpressure.
type Enqueuer interface {
	Enqueue(tenant id.TenantID, exam id.ExamID) error
}

// ResultsHandler exposes result publication and the result-day read path.
type ResultsHandler struct {
	dispatcher Enqueuer
	publisher  PublicationStatus
	reader     ResultReader
	logger     *slog.Logger
}

func NewResultsHandler(dispatcher Enqueuer, publisher PublicationStatus, reader ResultReader, logger *slog.Logger) *ResultsHandler {
	return &ResultsHandler{
		dispatcher: dispatcher,
		publisher:  publisher,
		reader:     reader,
		logger:     logger,
	}
}

// Register registers the results routes with the chi router.
func (h *ResultsHandler) Register(r chi.Router) {
	r.Post("/exams/{examID}/publish", h.handlePublish)
	r.Get("/exams/{examID}/publication", h.handlePublicationStatus)
	r.Get("/exams/{examID}/results/{studentID}", h.handleResult)
}

// handlePublish enqueues a publication run. The work is asynchronous: 202
// means accepted, and the caller polls the publication endpoint for progress.
func (h *ResultsHandler) handlePublish(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	examID, err := id.ParseExamID(chi.URLParam(r, "examID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.dispatcher.Enqueue(tenant, examID); err != nil {
		if errors.Is(err, sentinel.ErrBacklogFull) {
			if h.logger != nil {
				h.logger.WarnContext(r.Context(), "publication backlog full",
					"tenant", tenant.String(),
					"exam_id", examID.String(),
				)
			}
			shared.WriteError(w, dErrors.New(dErrors.CodeBackpressure, "publication backlog is full, retry later"))
			return
		}
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "failed to enqueue publication", err))
		return
	}
	shared.WriteJSON(w, http.StatusAccepted, map[string]string{
		"exam_id": examID.String(),
		"status":  "accepted",
	})
}

func (h *ResultsHandler) handlePublicationStatus(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	examID, err := id.ParseExamID(chi.URLParam(r, "examID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	progress, err := h.publisher.Status(r.Context(), tenant, examID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"exam_id":          examID.String(),
		"status":           string(progress.Status),
		"total_records":    progress.TotalRecords,
		"processed_offset": progress.ProcessedOffset,
		"updated_at":       progress.UpdatedAt,
	})
}

func (h *ResultsHandler) handleResult(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	examID, err := id.ParseExamID(chi.URLParam(r, "examID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	studentID, err := id.ParseStudentID(chi.URLParam(r, "studentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.reader.Result(r.Context(), tenant, examID, studentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}
