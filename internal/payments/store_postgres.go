package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	id "examdesk/pkg/domain"
	"examdesk/pkg/platform/sentinel"
)

// PostgresStore persists fees and payments. The (tenant, idempotency_key)
// unique index enforces at-most-one payment per key; the success transition
// runs payment and fee updates in one transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const uniqueViolation = "23505"

const paymentColumns = `tenant, id, fee_id, idempotency_key, gateway_ref, amount,
	currency, status, failure_reason, created_at, updated_at`

func (s *PostgresStore) FindFee(ctx context.Context, tenant id.TenantID, fee id.FeeID) (*Fee, error) {
	f := Fee{Tenant: tenant, ID: fee}
	var rawStudent, status string
	err := s.pool.QueryRow(ctx, `
		SELECT student_id, currency, amount_due, paid, status, updated_at
		FROM fees WHERE tenant = $1 AND id = $2`,
		tenant.String(), fee.String()).Scan(
		&rawStudent, &f.Currency, &f.AmountDue, &f.Paid, &status, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find fee: %w", err)
	}
	student, err := uuid.Parse(rawStudent)
	if err != nil {
		return nil, fmt.Errorf("parse student id: %w", err)
	}
	f.StudentID = id.StudentID(student)
	f.Status = FeeStatus(status)
	return &f, nil
}

func (s *PostgresStore) CreatePayment(ctx context.Context, payment *FeePayment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fee_payments
			(tenant, id, fee_id, idempotency_key, gateway_ref, amount,
			 currency, status, failure_reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		payment.Tenant.String(), payment.ID.String(), payment.FeeID.String(),
		payment.IdempotencyKey, payment.GatewayRef, payment.Amount,
		payment.Currency, string(payment.Status), payment.FailureReason,
		payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, tenant id.TenantID, key string) (*FeePayment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM fee_payments
		WHERE tenant = $1 AND idempotency_key = $2`,
		tenant.String(), key)
	return scanPayment(row)
}

func (s *PostgresStore) FindByGatewayRef(ctx context.Context, ref string) (*FeePayment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM fee_payments
		WHERE gateway_ref = $1`,
		ref)
	return scanPayment(row)
}

func (s *PostgresStore) MarkSucceeded(ctx context.Context, tenant id.TenantID, payment id.PaymentID, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin success transition: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		rawFee string
		amount int64
	)
	err = tx.QueryRow(ctx, `
		UPDATE fee_payments SET status = 'success', updated_at = $3
		WHERE tenant = $1 AND id = $2 AND status = 'initiated'
		RETURNING fee_id, amount`,
		tenant.String(), payment.String(), at).Scan(&rawFee, &amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.classifyTransition(ctx, tenant, payment)
	}
	if err != nil {
		return fmt.Errorf("transition payment: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE fees
		SET paid = paid + $3,
			status = CASE WHEN paid + $3 >= amount_due THEN 'paid' ELSE 'partially_paid' END,
			updated_at = $4
		WHERE tenant = $1 AND id = $2`,
		tenant.String(), rawFee, amount, at)
	if err != nil {
		return fmt.Errorf("settle fee: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, tenant id.TenantID, payment id.PaymentID, reason string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE fee_payments SET status = 'failed', failure_reason = $3, updated_at = $4
		WHERE tenant = $1 AND id = $2 AND status = 'initiated'`,
		tenant.String(), payment.String(), reason, at)
	if err != nil {
		return fmt.Errorf("fail payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyTransition(ctx, tenant, payment)
	}
	return nil
}

// classifyTransition distinguishes a missing payment from one already in a
// terminal state after a zero-row conditional update.
func (s *PostgresStore) classifyTransition(ctx context.Context, tenant id.TenantID, payment id.PaymentID) error {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM fee_payments WHERE tenant = $1 AND id = $2`,
		tenant.String(), payment.String()).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check payment: %w", err)
	}
	return sentinel.ErrInvalidState
}

func scanPayment(row pgx.Row) (*FeePayment, error) {
	var (
		rawTenant, rawID, rawFee, status string
		p                                FeePayment
	)
	err := row.Scan(&rawTenant, &rawID, &rawFee, &p.IdempotencyKey, &p.GatewayRef,
		&p.Amount, &p.Currency, &status, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	ids := []struct {
		raw string
		set func(uuid.UUID)
	}{
		{rawTenant, func(u uuid.UUID) { p.Tenant = id.TenantID(u) }},
		{rawID, func(u uuid.UUID) { p.ID = id.PaymentID(u) }},
		{rawFee, func(u uuid.UUID) { p.FeeID = id.FeeID(u) }},
	}
	for _, f := range ids {
		u, err := uuid.Parse(f.raw)
		if err != nil {
			return nil, fmt.Errorf("parse id column: %w", err)
		}
		f.set(u)
	}
	p.Status = PaymentStatus(status)
	return &p, nil
}
