package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/infrastructure/persistence"
)

const paymentColumns = `id, payment_id, merchant_id, amount_minor, currency, status,
	       card_token, card_last_four, card_brand,
	       psp_name, psp_auth_ref, psp_capture_ref, psp_void_ref,
	       fraud_score, fraud_degraded, threeds_outcome, decline_reason,
	       refunded_minor, correlation_id, batch_id,
	       created_at, updated_at, authorized_at, captured_at, settled_at`

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(db *persistence.DB) *PaymentRepository {
	return &PaymentRepository{pool: db.Pool}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, payment_id, merchant_id, amount_minor, currency, status,
			card_token, card_last_four, card_brand,
			psp_name, psp_auth_ref, psp_capture_ref, psp_void_ref,
			fraud_score, fraud_degraded, threeds_outcome, decline_reason,
			refunded_minor, correlation_id,
			created_at, updated_at, authorized_at, captured_at, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		          $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	m := toPaymentModel(p)
	_, err := executor(ctx, r.pool).Exec(ctx, query,
		m.ID, m.PaymentID, m.MerchantID, m.AmountMinor, m.Currency, m.Status,
		m.CardToken, m.CardLastFour, m.CardBrand,
		m.PSPName, m.PSPAuthRef, m.PSPCaptureRef, m.PSPVoidRef,
		m.FraudScore, m.FraudDegraded, m.ThreeDSOutcome, m.DeclineReason,
		m.RefundedMinor, m.CorrelationID,
		m.CreatedAt, m.UpdatedAt, m.AuthorizedAt, m.CapturedAt, m.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	query := `
		UPDATE payments
		SET status = $1,
		    psp_name = $2, psp_auth_ref = $3, psp_capture_ref = $4, psp_void_ref = $5,
		    fraud_score = $6, fraud_degraded = $7, threeds_outcome = $8, decline_reason = $9,
		    refunded_minor = $10, updated_at = $11,
		    authorized_at = $12, captured_at = $13, settled_at = $14
		WHERE payment_id = $15
	`

	m := toPaymentModel(p)
	tag, err := executor(ctx, r.pool).Exec(ctx, query,
		m.Status,
		m.PSPName, m.PSPAuthRef, m.PSPCaptureRef, m.PSPVoidRef,
		m.FraudScore, m.FraudDegraded, m.ThreeDSOutcome, m.DeclineReason,
		m.RefundedMinor, m.UpdatedAt,
		m.AuthorizedAt, m.CapturedAt, m.SettledAt,
		m.PaymentID,
	)
	if err != nil {
		return fmt.Errorf("update payment %s: %w", p.PaymentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update payment %s: no row", p.PaymentID)
	}
	return nil
}

func (r *PaymentRepository) FindByPaymentID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id = $1`
	row := executor(ctx, r.pool).QueryRow(ctx, query, paymentID)
	return scanPayment(row)
}

func (r *PaymentRepository) FindByPaymentIDForUpdate(ctx context.Context, paymentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id = $1 FOR UPDATE`
	row := executor(ctx, r.pool).QueryRow(ctx, query, paymentID)
	return scanPayment(row)
}

// List pages a merchant's payments newest first. Filter fields left at their
// zero value are not applied.
func (r *PaymentRepository) List(ctx context.Context, filter application.TransactionFilter) ([]*domain.Payment, int64, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	add("merchant_id = $%d", filter.MerchantID)
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Currency != "" {
		add("currency = $%d", filter.Currency)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at < $%d", filter.To)
	}
	where := strings.Join(conds, " AND ")

	var total int64
	countQuery := `SELECT COUNT(*) FROM payments WHERE ` + where
	if err := executor(ctx, r.pool).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM payments WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		paymentColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := executor(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query payments: %w", err)
	}
	payments, err := collectPayments(rows)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

func (r *PaymentRepository) CapturedForSettlement(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = $1
		  AND batch_id IS NULL
		  AND captured_at < $2
		ORDER BY captured_at ASC
		LIMIT $3`

	rows, err := executor(ctx, r.pool).Query(ctx, query, string(domain.StatusCaptured), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query captured payments: %w", err)
	}
	return collectPayments(rows)
}

func collectPayments(rows pgx.Rows) ([]*domain.Payment, error) {
	payments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Payment, error) {
		var m paymentModel
		err := row.Scan(
			&m.ID, &m.PaymentID, &m.MerchantID, &m.AmountMinor, &m.Currency, &m.Status,
			&m.CardToken, &m.CardLastFour, &m.CardBrand,
			&m.PSPName, &m.PSPAuthRef, &m.PSPCaptureRef, &m.PSPVoidRef,
			&m.FraudScore, &m.FraudDegraded, &m.ThreeDSOutcome, &m.DeclineReason,
			&m.RefundedMinor, &m.CorrelationID, &m.BatchID,
			&m.CreatedAt, &m.UpdatedAt, &m.AuthorizedAt, &m.CapturedAt, &m.SettledAt,
		)
		return toDomainPayment(m), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan payments: %w", err)
	}
	return payments, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var m paymentModel
	err := row.Scan(
		&m.ID, &m.PaymentID, &m.MerchantID, &m.AmountMinor, &m.Currency, &m.Status,
		&m.CardToken, &m.CardLastFour, &m.CardBrand,
		&m.PSPName, &m.PSPAuthRef, &m.PSPCaptureRef, &m.PSPVoidRef,
		&m.FraudScore, &m.FraudDegraded, &m.ThreeDSOutcome, &m.DeclineReason,
		&m.RefundedMinor, &m.CorrelationID, &m.BatchID,
		&m.CreatedAt, &m.UpdatedAt, &m.AuthorizedAt, &m.CapturedAt, &m.SettledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return toDomainPayment(m), nil
}
