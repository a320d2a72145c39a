package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"examdesk/internal/payments"
	"examdesk/internal/transport/http/shared"
	id "examdesk/pkg/domain"
	dErrors "examdesk/pkg/domain-errors"
)

const signatureHeader = "X-Gateway-Signature"

// Payments defines the payment operations the transport needs.
type Payments interface {
	Initiate(ctx context.Context, req payments.InitiateRequest) (payment *payments.FeePayment, created bool, err error)
	HandleWebhook(ctx context.Context, event payments.WebhookEvent) error
	Find(ctx context.Context, tenant id.TenantID, key string) (*payments.FeePayment, error)
}

// PaymentsHandler exposes fee payment initiation and the gateway webhook.
type PaymentsHandler struct {
	service       Payments
	webhookSecret string
	logger        *slog.Logger
}

func NewPaymentsHandler(service Payments, webhookSecret string, logger *slog.Logger) *PaymentsHandler {
	return &PaymentsHandler{service: service, webhookSecret: webhookSecret, logger: logger}
}

// Register registers the payment routes with the chi router.
func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/payments", h.handleInitiate)
	r.Get("/payments/{idempotencyKey}", h.handleGet)
	r.Post("/payments/webhook", h.handleWebhook)
}

type initiateRequest struct {
	FeeID          string `json:"fee_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Amount         int64  `json:"amount,omitempty"`
}

type paymentResponse struct {
	ID             string `json:"id"`
	FeeID          string `json:"fee_id"`
	IdempotencyKey string `json:"idempotency_key"`
	GatewayRef     string `json:"gateway_ref"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	FailureReason  string `json:"failure_reason,omitempty"`
}

func toPaymentResponse(p *payments.FeePayment) paymentResponse {
	return paymentResponse{
		ID:             p.ID.String(),
		FeeID:          p.FeeID.String(),
		IdempotencyKey: p.IdempotencyKey,
		GatewayRef:     p.GatewayRef,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Status:         string(p.Status),
		FailureReason:  p.FailureReason,
	}
}

func (h *PaymentsHandler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, err := shared.TenantFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var body initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	feeID, err := id.ParseFeeID(body.FeeID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	// The key may ride the conventional header instead of the body.
	if body.IdempotencyKey == "" {
		body.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	payment, created, err := h.service.Initiate(ctx, payments.InitiateRequest{
		Tenant:         tenant,
		FeeID:          feeID,
		IdempotencyKey: body.IdempotencyKey,
		Amount:         body.Amount,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	// A replayed key returns the prior payment with 200; a fresh one 201.
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	shared.WriteJSON(w, status, toPaymentResponse(payment))
}

func (h *PaymentsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	key := chi.URLParam(r, "idempotencyKey")

	payment, err := h.service.Find(r.Context(), tenant, key)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toPaymentResponse(payment))
}

// handleWebhook verifies the gateway signature over the raw body before
// decoding it. Unverified callbacks are rejected without touching state.
func (h *PaymentsHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read request body"))
		return
	}
	if !payments.VerifySignature(h.webhookSecret, body, r.Header.Get(signatureHeader)) {
		if h.logger != nil {
			h.logger.WarnContext(ctx, "webhook signature verification failed")
		}
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid webhook signature"))
		return
	}

	var event payments.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid webhook body"))
		return
	}

	if err := h.service.HandleWebhook(ctx, event); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
