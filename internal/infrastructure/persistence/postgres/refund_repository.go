package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/infrastructure/persistence"
)

const refundColumns = `id, refund_id, payment_id, merchant_id, amount_minor, currency,
	       status, psp_ref, reason, correlation_id, created_at, updated_at, completed_at`

type RefundRepository struct {
	pool *pgxpool.Pool
}

func NewRefundRepository(db *persistence.DB) *RefundRepository {
	return &RefundRepository{pool: db.Pool}
}

func (r *RefundRepository) Create(ctx context.Context, ref *domain.Refund) error {
	query := `
		INSERT INTO refunds (
			id, refund_id, payment_id, merchant_id, amount_minor, currency,
			status, psp_ref, reason, correlation_id, created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	m := toRefundModel(ref)
	_, err := executor(ctx, r.pool).Exec(ctx, query,
		m.ID, m.RefundID, m.PaymentID, m.MerchantID, m.AmountMinor, m.Currency,
		m.Status, m.PSPRef, m.Reason, m.CorrelationID, m.CreatedAt, m.UpdatedAt, m.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}

func (r *RefundRepository) Update(ctx context.Context, ref *domain.Refund) error {
	query := `
		UPDATE refunds
		SET status = $1, psp_ref = $2, updated_at = $3, completed_at = $4
		WHERE refund_id = $5
	`

	m := toRefundModel(ref)
	tag, err := executor(ctx, r.pool).Exec(ctx, query,
		m.Status, m.PSPRef, m.UpdatedAt, m.CompletedAt, m.RefundID,
	)
	if err != nil {
		return fmt.Errorf("update refund %s: %w", ref.RefundID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update refund %s: no row", ref.RefundID)
	}
	return nil
}

func (r *RefundRepository) FindByRefundID(ctx context.Context, refundID string) (*domain.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE refund_id = $1`

	var m refundModel
	err := executor(ctx, r.pool).QueryRow(ctx, query, refundID).Scan(
		&m.ID, &m.RefundID, &m.PaymentID, &m.MerchantID, &m.AmountMinor, &m.Currency,
		&m.Status, &m.PSPRef, &m.Reason, &m.CorrelationID, &m.CreatedAt, &m.UpdatedAt, &m.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan refund: %w", err)
	}
	return toDomainRefund(m), nil
}

func (r *RefundRepository) ListByPaymentID(ctx context.Context, paymentID string) ([]*domain.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE payment_id = $1 ORDER BY created_at ASC`

	rows, err := executor(ctx, r.pool).Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("query refunds: %w", err)
	}
	refunds, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Refund, error) {
		var m refundModel
		err := row.Scan(
			&m.ID, &m.RefundID, &m.PaymentID, &m.MerchantID, &m.AmountMinor, &m.Currency,
			&m.Status, &m.PSPRef, &m.Reason, &m.CorrelationID, &m.CreatedAt, &m.UpdatedAt, &m.CompletedAt,
		)
		return toDomainRefund(m), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan refunds: %w", err)
	}
	return refunds, nil
}

// SumActive totals PENDING and COMPLETED refunds for a payment. Run under the
// payment's row lock it is the overshoot guard for concurrent refunds.
func (r *RefundRepository) SumActive(ctx context.Context, paymentID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount_minor), 0)
		FROM refunds
		WHERE payment_id = $1 AND status IN ($2, $3)
	`

	var sum int64
	err := executor(ctx, r.pool).QueryRow(ctx, query,
		paymentID, string(domain.RefundPending), string(domain.RefundCompleted),
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum active refunds: %w", err)
	}
	return sum, nil
}
