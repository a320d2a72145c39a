package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"examdesk/internal/payments"
	"examdesk/internal/platform/logger"
	"examdesk/internal/results"
	"examdesk/internal/schedule"
	id "examdesk/pkg/domain"
	"examdesk/pkg/platform/sentinel"
)

type HandlersSuite struct {
	suite.Suite
	tenant     id.TenantID
	examStore  *results.InMemoryExamStore
	gradeStore *results.InMemoryGradeStore
	cache      *results.InMemoryCache
	notifier   *results.InMemoryNotifier
	payStore *payments.InMemoryStore
	gateway  *payments.InMemoryGateway
	server   *httptest.Server
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

const webhookSecret = "test-secret"

func (s *HandlersSuite) SetupTest() {
	s.tenant = id.TenantID(uuid.New())
	log := logger.New()

	enrollments := schedule.NewInMemoryEnrollments()
	scheduleStore := schedule.NewInMemoryStore(enrollments)
	scheduler := schedule.NewService(scheduleStore, enrollments, log, nil)

	s.examStore = results.NewInMemoryExamStore()
	s.gradeStore = results.NewInMemoryGradeStore()
	s.cache = results.NewInMemoryCache()
	s.notifier = results.NewInMemoryNotifier()
	publisher := results.NewPublisher(
		s.examStore, s.gradeStore, results.NewInMemoryProgressStore(),
		s.cache, s.notifier, results.PublisherConfig{BatchSize: 10},
	)
	reader := results.NewReader(s.examStore, s.gradeStore, s.cache, time.Hour, log, nil)

	s.payStore = payments.NewInMemoryStore()
	s.gateway = payments.NewInMemoryGateway()
	paySvc := payments.NewService(s.payStore, s.gateway, log, nil)

	router := NewRouter(RouterConfig{
		Logger: log,
		Handlers: []Registrar{
			NewScheduleHandler(scheduler, log),
			NewResultsHandler(&syncEnqueuer{publisher: publisher}, publisher, reader, log),
			NewPaymentsHandler(paySvc, webhookSecret, log),
		},
	})
	s.server = httptest.NewServer(router)
	s.T().Cleanup(s.server.Close)
}

// syncEnqueuer runs publication inline so handler tests observe the outcome
// without a worker pool.
type syncEnqueuer struct {
	publisher *results.Publisher
}

func (e *syncEnqueuer) Enqueue(tenant id.TenantID, exam id.ExamID) error {
	_, _ = e.publisher.Publish(context.Background(), tenant, exam)
	return nil
}

// rejectingEnqueuer simulates a saturated worker pool.
type rejectingEnqueuer struct{}

func (rejectingEnqueuer) Enqueue(id.TenantID, id.ExamID) error {
	return sentinel.ErrBacklogFull
}

func (s *HandlersSuite) do(method, path string, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", s.tenant.String())
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *HandlersSuite) decode(resp *http.Response, into any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(into))
}

func (s *HandlersSuite) scheduleBody(room string, start, end string) map[string]any {
	return map[string]any{
		"exam_id":      uuid.NewString(),
		"subject_id":   uuid.NewString(),
		"class_id":     uuid.NewString(),
		"date":         "2026-03-10",
		"start":        start,
		"end":          end,
		"room_id":      room,
		"invigilators": []string{uuid.NewString()},
		"max_marks":    100,
	}
}

func (s *HandlersSuite) TestScheduleCommitAndConflict() {
	room := uuid.NewString()

	resp := s.do(http.MethodPost, "/schedules", s.scheduleBody(room, "09:00", "11:00"))
	s.Equal(http.StatusCreated, resp.StatusCode)
	var first struct {
		Status string `json:"status"`
		Entry  struct {
			ID string `json:"id"`
		} `json:"entry"`
	}
	s.decode(resp, &first)
	s.Equal("committed", first.Status)

	s.Run("overlap in the same room is rejected with conflicts", func() {
		resp := s.do(http.MethodPost, "/schedules", s.scheduleBody(room, "10:00", "12:00"))
		s.Equal(http.StatusConflict, resp.StatusCode)
		var rejected struct {
			Status    string `json:"status"`
			Conflicts struct {
				Room []struct {
					ID string `json:"id"`
				} `json:"room"`
			} `json:"conflicts"`
		}
		s.decode(resp, &rejected)
		s.Equal("rejected", rejected.Status)
		s.Require().Len(rejected.Conflicts.Room, 1)
		s.Equal(first.Entry.ID, rejected.Conflicts.Room[0].ID)
	})

	s.Run("cancel frees the slot", func() {
		resp := s.do(http.MethodDelete, "/schedules/"+first.Entry.ID, nil)
		s.Equal(http.StatusNoContent, resp.StatusCode)
		resp.Body.Close()

		resp = s.do(http.MethodPost, "/schedules", s.scheduleBody(room, "10:00", "12:00"))
		s.Equal(http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	})
}

func (s *HandlersSuite) TestMissingTenantHeader() {
	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/schedules", bytes.NewBufferString("{}"))
	s.Require().NoError(err)
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlersSuite) TestPublishAndReadResult() {
	examID := id.ExamID(uuid.New())
	studentID := id.StudentID(uuid.New())
	s.examStore.Put(&results.Exam{Tenant: s.tenant, ID: examID, Status: results.ExamStatusReadyForPublication})
	s.gradeStore.Add(results.GradeRecord{
		Tenant:        s.tenant,
		ExamID:        examID,
		StudentID:     studentID,
		SubjectID:     id.SubjectID(uuid.New()),
		MarksObtained: 95,
		TotalMarks:    100,
		GradeLetter:   "A+",
		ComputedAt:    time.Now(),
	})

	resp := s.do(http.MethodPost, "/exams/"+examID.String()+"/publish", nil)
	s.Equal(http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	s.Run("publication status reflects the finished run", func() {
		resp := s.do(http.MethodGet, "/exams/"+examID.String()+"/publication", nil)
		s.Equal(http.StatusOK, resp.StatusCode)
		var status struct {
			Status          string `json:"status"`
			ProcessedOffset int    `json:"processed_offset"`
		}
		s.decode(resp, &status)
		s.Equal("completed", status.Status)
		s.Equal(1, status.ProcessedOffset)
	})

	s.Run("the published result is readable", func() {
		resp := s.do(http.MethodGet, "/exams/"+examID.String()+"/results/"+studentID.String(), nil)
		s.Equal(http.StatusOK, resp.StatusCode)
		var result struct {
			GradeLetter string `json:"grade_letter"`
			Category    string `json:"category"`
		}
		s.decode(resp, &result)
		s.Equal("A+", result.GradeLetter)
		s.Equal("Excellent", result.Category)
	})

	s.Run("an unknown student is not found", func() {
		resp := s.do(http.MethodGet, "/exams/"+examID.String()+"/results/"+uuid.NewString(), nil)
		s.Equal(http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})
}

func (s *HandlersSuite) TestPublishBackpressure() {
	handler := NewResultsHandler(&rejectingEnqueuer{}, nil, nil, logger.New())
	router := NewRouter(RouterConfig{Logger: logger.New(), Handlers: []Registrar{handler}})
	server := httptest.NewServer(router)
	defer server.Close()

	req, err := http.NewRequest(http.MethodPost, server.URL+"/exams/"+uuid.NewString()+"/publish", nil)
	s.Require().NoError(err)
	req.Header.Set("X-Tenant-ID", s.tenant.String())
	resp, err := server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusTooManyRequests, resp.StatusCode)
}

func (s *HandlersSuite) TestPaymentLifecycle() {
	feeID := id.FeeID(uuid.New())
	s.payStore.PutFee(&payments.Fee{
		Tenant:    s.tenant,
		ID:        feeID,
		StudentID: id.StudentID(uuid.New()),
		Currency:  "INR",
		AmountDue: 25000,
		Status:    payments.FeeStatusPending,
	})
	body := map[string]any{"fee_id": feeID.String(), "idempotency_key": "order-1"}

	resp := s.do(http.MethodPost, "/payments", body)
	s.Equal(http.StatusCreated, resp.StatusCode)
	var created struct {
		GatewayRef string `json:"gateway_ref"`
		Status     string `json:"status"`
	}
	s.decode(resp, &created)
	s.Equal("initiated", created.Status)
	s.NotEmpty(created.GatewayRef)

	s.Run("replay returns the same payment with 200", func() {
		resp := s.do(http.MethodPost, "/payments", body)
		s.Equal(http.StatusOK, resp.StatusCode)
		var replay struct {
			GatewayRef string `json:"gateway_ref"`
		}
		s.decode(resp, &replay)
		s.Equal(created.GatewayRef, replay.GatewayRef)
		s.Equal(1, s.gateway.Calls())
	})

	s.Run("signed webhook settles the payment", func() {
		payload, err := json.Marshal(payments.WebhookEvent{
			GatewayRef: created.GatewayRef,
			Status:     payments.WebhookStatusSuccess,
		})
		s.Require().NoError(err)

		resp := s.webhook(payload, payments.SignPayload(webhookSecret, payload))
		s.Equal(http.StatusNoContent, resp.StatusCode)
		resp.Body.Close()

		resp = s.do(http.MethodGet, "/payments/order-1", nil)
		var settled struct {
			Status string `json:"status"`
		}
		s.decode(resp, &settled)
		s.Equal("success", settled.Status)
	})

	s.Run("an unsigned webhook is rejected", func() {
		payload := []byte(fmt.Sprintf(`{"gateway_ref":%q,"status":"failed"}`, created.GatewayRef))
		resp := s.webhook(payload, "bad-signature")
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	})
}

func (s *HandlersSuite) webhook(payload []byte, signature string) *http.Response {
	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/payments/webhook", bytes.NewReader(payload))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gateway-Signature", signature)
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	return resp
}
