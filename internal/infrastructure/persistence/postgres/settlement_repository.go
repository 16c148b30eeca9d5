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

const batchColumns = `id, batch_id, merchant_id, currency, settlement_date, status,
	       gross_minor, fee_minor, net_minor, payment_count, acquirer_ref,
	       created_at, updated_at, submitted_at, settled_at`

type SettlementRepository struct {
	pool *pgxpool.Pool
}

func NewSettlementRepository(db *persistence.DB) *SettlementRepository {
	return &SettlementRepository{pool: db.Pool}
}

func (r *SettlementRepository) CreateBatch(ctx context.Context, b *domain.SettlementBatch) error {
	query := `
		INSERT INTO settlement_batches (
			id, batch_id, merchant_id, currency, settlement_date, status,
			gross_minor, fee_minor, net_minor, payment_count, acquirer_ref,
			created_at, updated_at, submitted_at, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	m := toBatchModel(b)
	_, err := executor(ctx, r.pool).Exec(ctx, query,
		m.ID, m.BatchID, m.MerchantID, m.Currency, m.SettlementDate, m.Status,
		m.GrossMinor, m.FeeMinor, m.NetMinor, m.PaymentCount, m.AcquirerRef,
		m.CreatedAt, m.UpdatedAt, m.SubmittedAt, m.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("insert settlement batch: %w", err)
	}
	return nil
}

func (r *SettlementRepository) UpdateBatch(ctx context.Context, b *domain.SettlementBatch) error {
	query := `
		UPDATE settlement_batches
		SET status = $1, acquirer_ref = $2, updated_at = $3, submitted_at = $4, settled_at = $5
		WHERE batch_id = $6
	`

	m := toBatchModel(b)
	tag, err := executor(ctx, r.pool).Exec(ctx, query,
		m.Status, m.AcquirerRef, m.UpdatedAt, m.SubmittedAt, m.SettledAt, m.BatchID,
	)
	if err != nil {
		return fmt.Errorf("update settlement batch %s: %w", b.BatchID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update settlement batch %s: no row", b.BatchID)
	}
	return nil
}

func (r *SettlementRepository) FindBatch(ctx context.Context, batchID string) (*domain.SettlementBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM settlement_batches WHERE batch_id = $1`
	row := executor(ctx, r.pool).QueryRow(ctx, query, batchID)
	return scanBatch(row)
}

func (r *SettlementRepository) ListBatchesByStatus(ctx context.Context, status domain.SettlementBatchStatus, limit int) ([]*domain.SettlementBatch, error) {
	query := `SELECT ` + batchColumns + `
		FROM settlement_batches
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := executor(ctx, r.pool).Query(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("query batches by status: %w", err)
	}
	batches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.SettlementBatch, error) {
		var m batchModel
		err := row.Scan(
			&m.ID, &m.BatchID, &m.MerchantID, &m.Currency, &m.SettlementDate, &m.Status,
			&m.GrossMinor, &m.FeeMinor, &m.NetMinor, &m.PaymentCount, &m.AcquirerRef,
			&m.CreatedAt, &m.UpdatedAt, &m.SubmittedAt, &m.SettledAt,
		)
		return toDomainBatch(m), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan batches: %w", err)
	}
	return batches, nil
}

// AssignPayments stamps the batch onto its member payments. A payment already
// claimed by another batch is not restamped; the affected-row count catching
// fewer rows than ids signals a double cut-off.
func (r *SettlementRepository) AssignPayments(ctx context.Context, batchID string, paymentIDs []string) error {
	query := `
		UPDATE payments
		SET batch_id = $1, updated_at = NOW()
		WHERE payment_id = ANY($2) AND batch_id IS NULL
	`

	tag, err := executor(ctx, r.pool).Exec(ctx, query, batchID, paymentIDs)
	if err != nil {
		return fmt.Errorf("assign payments to batch %s: %w", batchID, err)
	}
	if int(tag.RowsAffected()) != len(paymentIDs) {
		return fmt.Errorf("assign payments to batch %s: claimed %d of %d", batchID, tag.RowsAffected(), len(paymentIDs))
	}
	return nil
}

func (r *SettlementRepository) PaymentsInBatch(ctx context.Context, batchID string) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE batch_id = $1 ORDER BY captured_at ASC`

	rows, err := executor(ctx, r.pool).Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("query batch payments: %w", err)
	}
	return collectPayments(rows)
}

func (r *SettlementRepository) AddAdjustment(ctx context.Context, adj *domain.SettlementAdjustment) error {
	query := `
		INSERT INTO settlement_adjustments (
			merchant_id, currency, amount_minor, reason, dispute_id, batch_id, created_at, applied_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := executor(ctx, r.pool).QueryRow(ctx, query,
		adj.MerchantID, adj.Currency, adj.AmountMinor, adj.Reason,
		adj.DisputeID, adj.BatchID, adj.CreatedAt, adj.AppliedAt,
	).Scan(&adj.ID)
	if err != nil {
		return fmt.Errorf("insert settlement adjustment: %w", err)
	}
	return nil
}

func (r *SettlementRepository) PendingAdjustments(ctx context.Context, merchantID, currency string) ([]*domain.SettlementAdjustment, error) {
	query := `
		SELECT id, merchant_id, currency, amount_minor, reason, dispute_id, batch_id, created_at, applied_at
		FROM settlement_adjustments
		WHERE merchant_id = $1 AND currency = $2 AND applied_at IS NULL
		ORDER BY id ASC
	`

	rows, err := executor(ctx, r.pool).Query(ctx, query, merchantID, currency)
	if err != nil {
		return nil, fmt.Errorf("query pending adjustments: %w", err)
	}
	adjustments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.SettlementAdjustment, error) {
		var m adjustmentModel
		err := row.Scan(
			&m.ID, &m.MerchantID, &m.Currency, &m.AmountMinor, &m.Reason,
			&m.DisputeID, &m.BatchID, &m.CreatedAt, &m.AppliedAt,
		)
		return toDomainAdjustment(m), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan adjustments: %w", err)
	}
	return adjustments, nil
}

func (r *SettlementRepository) MarkAdjustmentsApplied(ctx context.Context, ids []int64, batchID string) error {
	query := `
		UPDATE settlement_adjustments
		SET applied_at = NOW(), batch_id = $1
		WHERE id = ANY($2) AND applied_at IS NULL
	`

	if _, err := executor(ctx, r.pool).Exec(ctx, query, batchID, ids); err != nil {
		return fmt.Errorf("mark adjustments applied: %w", err)
	}
	return nil
}

func scanBatch(row pgx.Row) (*domain.SettlementBatch, error) {
	var m batchModel
	err := row.Scan(
		&m.ID, &m.BatchID, &m.MerchantID, &m.Currency, &m.SettlementDate, &m.Status,
		&m.GrossMinor, &m.FeeMinor, &m.NetMinor, &m.PaymentCount, &m.AcquirerRef,
		&m.CreatedAt, &m.UpdatedAt, &m.SubmittedAt, &m.SettledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan settlement batch: %w", err)
	}
	return toDomainBatch(m), nil
}
