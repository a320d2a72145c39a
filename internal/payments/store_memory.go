package payments

import (
	"context"
	"sync"
	"time"

	id "examdesk/pkg/domain"
	"examdesk/pkg/platform/sentinel"
)

type keyIndex struct {
	tenant id.TenantID
	key    string
}

// InMemoryStore backs tests and single-node deployments.
type InMemoryStore struct {
	mu       sync.Mutex
	fees     map[id.FeeID]*Fee
	payments map[id.PaymentID]*FeePayment
	byKey    map[keyIndex]id.PaymentID
	byRef    map[string]id.PaymentID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		fees:     make(map[id.FeeID]*Fee),
		payments: make(map[id.PaymentID]*FeePayment),
		byKey:    make(map[keyIndex]id.PaymentID),
		byRef:    make(map[string]id.PaymentID),
	}
}

// PutFee seeds a fee.
func (s *InMemoryStore) PutFee(fee *Fee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *fee
	s.fees[fee.ID] = &copied
}

func (s *InMemoryStore) FindFee(_ context.Context, tenant id.TenantID, fee id.FeeID) (*Fee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fees[fee]
	if !ok || f.Tenant != tenant {
		return nil, sentinel.ErrNotFound
	}
	copied := *f
	return &copied, nil
}

func (s *InMemoryStore) CreatePayment(_ context.Context, payment *FeePayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := keyIndex{payment.Tenant, payment.IdempotencyKey}
	if _, exists := s.byKey[idx]; exists {
		return sentinel.ErrConflict
	}
	copied := *payment
	s.payments[payment.ID] = &copied
	s.byKey[idx] = payment.ID
	if payment.GatewayRef != "" {
		s.byRef[payment.GatewayRef] = payment.ID
	}
	return nil
}

func (s *InMemoryStore) FindByIdempotencyKey(_ context.Context, tenant id.TenantID, key string) (*FeePayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.byKey[keyIndex{tenant, key}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *s.payments[pid]
	return &copied, nil
}

func (s *InMemoryStore) FindByGatewayRef(_ context.Context, ref string) (*FeePayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.byRef[ref]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *s.payments[pid]
	return &copied, nil
}

func (s *InMemoryStore) MarkSucceeded(_ context.Context, tenant id.TenantID, payment id.PaymentID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[payment]
	if !ok || p.Tenant != tenant {
		return sentinel.ErrNotFound
	}
	if p.Status != PaymentInitiated {
		return sentinel.ErrInvalidState
	}
	p.Status = PaymentSuccess
	p.UpdatedAt = at

	// The fee settles in the same operation.
	f, ok := s.fees[p.FeeID]
	if !ok {
		return sentinel.ErrNotFound
	}
	f.Paid += p.Amount
	if f.Paid >= f.AmountDue {
		f.Status = FeeStatusPaid
	} else {
		f.Status = FeeStatusPartiallyPaid
	}
	f.UpdatedAt = at
	return nil
}

func (s *InMemoryStore) MarkFailed(_ context.Context, tenant id.TenantID, payment id.PaymentID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[payment]
	if !ok || p.Tenant != tenant {
		return sentinel.ErrNotFound
	}
	if p.Status != PaymentInitiated {
		return sentinel.ErrInvalidState
	}
	p.Status = PaymentFailed
	p.FailureReason = reason
	p.UpdatedAt = at
	return nil
}
