package payments

import (
	"context"
	"time"

	id "examdesk/pkg/domain"
)

// Store persists fees and payment attempts. The uniqueness of
// (tenant, idempotency key) and the success transition that also settles the
// fee are the store's responsibility: both must be atomic.
type Store interface {
	FindFee(ctx context.Context, tenant id.TenantID, fee id.FeeID) (*Fee, error)

	// CreatePayment inserts an Initiated payment. Returns sentinel.ErrConflict
	// when the tenant already has a payment with the same idempotency key.
	CreatePayment(ctx context.Context, payment *FeePayment) error
	FindByIdempotencyKey(ctx context.Context, tenant id.TenantID, key string) (*FeePayment, error)
	// FindByGatewayRef correlates a gateway callback with its payment.
	FindByGatewayRef(ctx context.Context, ref string) (*FeePayment, error)

	// MarkSucceeded transitions Initiated → Success and applies the amount to
	// the fee in the same atomic operation. Returns sentinel.ErrInvalidState
	// if the payment is not Initiated.
	MarkSucceeded(ctx context.Context, tenant id.TenantID, payment id.PaymentID, at time.Time) error
	// MarkFailed transitions Initiated → Failed with a reason. Returns
	// sentinel.ErrInvalidState if the payment is not Initiated.
	MarkFailed(ctx context.Context, tenant id.TenantID, payment id.PaymentID, reason string, at time.Time) error
}
