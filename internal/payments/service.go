package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"examdesk/internal/payments/metrics"
	id "examdesk/pkg/domain"
	dErrors "examdesk/pkg/domain-errors"
	"examdesk/pkg/platform/sentinel"
)

// Service processes fee payments idempotently: one idempotency key yields at
// most one gateway charge, and gateway callbacks transition the payment
// exactly once no matter how often they are delivered.
type Service struct {
	store   Store
	gateway Gateway
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

func NewService(store Store, gateway Gateway, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		gateway: gateway,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("examdesk/payments"),
		now:     time.Now,
	}
}

// InitiateRequest starts a payment against a fee.
type InitiateRequest struct {
	Tenant         id.TenantID
	FeeID          id.FeeID
	IdempotencyKey string
	Amount         int64
}

// Initiate creates a payment or replays the prior one. A request whose
// idempotency key was seen before returns the existing payment in whatever
// state it is, without contacting the gateway again; created reports which of
// the two happened.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (payment *FeePayment, created bool, err error) {
	ctx, span := s.tracer.Start(ctx, "payments.initiate")
	defer span.End()

	if req.IdempotencyKey == "" {
		return nil, false, dErrors.New(dErrors.CodeInvalidInput, "idempotency key is required")
	}

	existing, err := s.store.FindByIdempotencyKey(ctx, req.Tenant, req.IdempotencyKey)
	if err == nil {
		s.metrics.IncInitiation("replayed")
		return existing, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, dErrors.Wrap(dErrors.CodeInternal, "failed to look up idempotency key", err)
	}

	fee, err := s.store.FindFee(ctx, req.Tenant, req.FeeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncInitiation("rejected")
			return nil, false, dErrors.New(dErrors.CodeNotFound, "fee not found")
		}
		return nil, false, dErrors.Wrap(dErrors.CodeInternal, "failed to load fee", err)
	}
	if fee.Status == FeeStatusPaid {
		s.metrics.IncInitiation("rejected")
		return nil, false, dErrors.New(dErrors.CodeInvalidState, "fee is already settled")
	}

	amount := req.Amount
	if amount <= 0 {
		amount = fee.Outstanding()
	}

	now := s.now().UTC()
	payment = &FeePayment{
		Tenant:         req.Tenant,
		ID:             id.PaymentID(uuid.New()),
		FeeID:          req.FeeID,
		IdempotencyKey: req.IdempotencyKey,
		Amount:         amount,
		Currency:       fee.Currency,
		Status:         PaymentInitiated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := payment.Validate(); err != nil {
		s.metrics.IncInitiation("rejected")
		return nil, false, err
	}

	charge, err := s.gateway.CreateCharge(ctx, ChargeRequest{
		Tenant:    req.Tenant,
		PaymentID: payment.ID,
		FeeID:     req.FeeID,
		Amount:    amount,
		Currency:  fee.Currency,
	})
	if err != nil {
		s.metrics.IncInitiation("rejected")
		if dErrors.HasCode(err, dErrors.CodeUnavailable) || dErrors.HasCode(err, dErrors.CodeBadRequest) {
			return nil, false, err
		}
		return nil, false, dErrors.Wrap(dErrors.CodeUnavailable, "payment gateway call failed", err)
	}
	payment.GatewayRef = charge.GatewayRef

	if err := s.store.CreatePayment(ctx, payment); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// A concurrent request with the same key won the insert; return
			// its payment. The charge created here is orphaned and will fail
			// or be voided gateway-side since its callback matches nothing.
			winner, findErr := s.store.FindByIdempotencyKey(ctx, req.Tenant, req.IdempotencyKey)
			if findErr != nil {
				return nil, false, dErrors.Wrap(dErrors.CodeInternal, "failed to load concurrent payment", findErr)
			}
			s.metrics.IncInitiation("replayed")
			return winner, false, nil
		}
		return nil, false, dErrors.Wrap(dErrors.CodeInternal, "failed to persist payment", err)
	}

	s.metrics.IncInitiation("created")
	if s.logger != nil {
		s.logger.InfoContext(ctx, "payment initiated",
			"tenant", req.Tenant.String(),
			"payment_id", payment.ID.String(),
			"fee_id", req.FeeID.String(),
			"gateway_ref", payment.GatewayRef,
		)
	}
	return payment, true, nil
}

// HandleWebhook applies a gateway callback. Redelivered callbacks for a
// payment already in a terminal state are acknowledged without effect.
func (s *Service) HandleWebhook(ctx context.Context, event WebhookEvent) error {
	ctx, span := s.tracer.Start(ctx, "payments.webhook")
	defer span.End()

	if event.GatewayRef == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "gateway reference is required")
	}

	payment, err := s.store.FindByGatewayRef(ctx, event.GatewayRef)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncWebhook("unknown")
			return dErrors.New(dErrors.CodeInvalidState, "no payment for gateway reference")
		}
		return dErrors.Wrap(dErrors.CodeInternal, "failed to load payment", err)
	}

	if payment.Status.Terminal() {
		s.metrics.IncWebhook("duplicate")
		if s.logger != nil && string(payment.Status) != event.Status {
			s.logger.WarnContext(ctx, "webhook for settled payment ignored",
				"payment_id", payment.ID.String(),
				"payment_status", string(payment.Status),
				"webhook_status", event.Status,
			)
		}
		return nil
	}

	at := event.OccurredAt
	if at.IsZero() {
		at = s.now().UTC()
	}

	switch event.Status {
	case WebhookStatusSuccess:
		err = s.store.MarkSucceeded(ctx, payment.Tenant, payment.ID, at)
	case WebhookStatusFailed:
		err = s.store.MarkFailed(ctx, payment.Tenant, payment.ID, event.Reason, at)
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "unknown webhook status: "+event.Status)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			// Lost a race with another delivery of the same callback.
			s.metrics.IncWebhook("duplicate")
			return nil
		}
		return dErrors.Wrap(dErrors.CodeInternal, "failed to apply webhook", err)
	}

	outcome := "succeeded"
	if event.Status == WebhookStatusFailed {
		outcome = "failed"
	}
	s.metrics.IncWebhook(outcome)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "payment settled",
			"tenant", payment.Tenant.String(),
			"payment_id", payment.ID.String(),
			"status", event.Status,
		)
	}
	return nil
}

// Find returns the payment created under an idempotency key.
func (s *Service) Find(ctx context.Context, tenant id.TenantID, key string) (*FeePayment, error) {
	payment, err := s.store.FindByIdempotencyKey(ctx, tenant, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "payment not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load payment", err)
	}
	return payment, nil
}
