package payments

import (
	"time"

	id "examdesk/pkg/domain"
	dErrors "examdesk/pkg/domain-errors"
)

// FeeStatus tracks what the student still owes. Amounts are in minor
// currency units.
type FeeStatus string

const (
	FeeStatusPending       FeeStatus = "pending"
	FeeStatusPartiallyPaid FeeStatus = "partially_paid"
	FeeStatusPaid          FeeStatus = "paid"
)

// Fee is the billable item a payment settles.
type Fee struct {
	Tenant    id.TenantID
	ID        id.FeeID
	StudentID id.StudentID
	Currency  string
	AmountDue int64
	Paid      int64
	Status    FeeStatus
	UpdatedAt time.Time
}

// Outstanding is what remains to be paid.
func (f *Fee) Outstanding() int64 {
	if f.Paid >= f.AmountDue {
		return 0
	}
	return f.AmountDue - f.Paid
}

// PaymentStatus transitions are Initiated → Success or Initiated → Failed.
// Both Success and Failed are absorbing: once reached, later callbacks never
// move the payment again.
type PaymentStatus string

const (
	PaymentInitiated PaymentStatus = "initiated"
	PaymentSuccess   PaymentStatus = "success"
	PaymentFailed    PaymentStatus = "failed"
)

// Terminal reports whether the status absorbs further transitions.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentSuccess || s == PaymentFailed
}

// FeePayment is one payment attempt. IdempotencyKey is unique per tenant:
// replaying a request with the same key returns this record instead of
// charging again. GatewayRef is the gateway's identifier, used to correlate
// callbacks.
type FeePayment struct {
	Tenant         id.TenantID
	ID             id.PaymentID
	FeeID          id.FeeID
	IdempotencyKey string
	GatewayRef     string
	Amount         int64
	Currency       string
	Status         PaymentStatus
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (p *FeePayment) Validate() error {
	if p.Tenant.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "tenant is required")
	}
	if p.FeeID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "fee id is required")
	}
	if p.IdempotencyKey == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "idempotency key is required")
	}
	if p.Amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	return nil
}
