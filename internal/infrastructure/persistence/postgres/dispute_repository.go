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

type DisputeRepository struct {
	pool *pgxpool.Pool
}

func NewDisputeRepository(db *persistence.DB) *DisputeRepository {
	return &DisputeRepository{pool: db.Pool}
}

func (r *DisputeRepository) Create(ctx context.Context, d *domain.Dispute) error {
	query := `
		INSERT INTO disputes (
			id, dispute_id, payment_id, merchant_id, amount_minor, currency,
			status, reason_code, evidence_due, created_at, updated_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	m := toDisputeModel(d)
	_, err := executor(ctx, r.pool).Exec(ctx, query,
		m.ID, m.DisputeID, m.PaymentID, m.MerchantID, m.AmountMinor, m.Currency,
		m.Status, m.ReasonCode, m.EvidenceDue, m.CreatedAt, m.UpdatedAt, m.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dispute: %w", err)
	}
	return nil
}

func (r *DisputeRepository) Update(ctx context.Context, d *domain.Dispute) error {
	query := `
		UPDATE disputes
		SET status = $1, evidence_due = $2, updated_at = $3, closed_at = $4
		WHERE dispute_id = $5
	`

	m := toDisputeModel(d)
	tag, err := executor(ctx, r.pool).Exec(ctx, query,
		m.Status, m.EvidenceDue, m.UpdatedAt, m.ClosedAt, m.DisputeID,
	)
	if err != nil {
		return fmt.Errorf("update dispute %s: %w", d.DisputeID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update dispute %s: no row", d.DisputeID)
	}
	return nil
}

func (r *DisputeRepository) FindByDisputeID(ctx context.Context, disputeID string) (*domain.Dispute, error) {
	query := `
		SELECT id, dispute_id, payment_id, merchant_id, amount_minor, currency,
		       status, reason_code, evidence_due, created_at, updated_at, closed_at
		FROM disputes
		WHERE dispute_id = $1
	`

	var m disputeModel
	err := executor(ctx, r.pool).QueryRow(ctx, query, disputeID).Scan(
		&m.ID, &m.DisputeID, &m.PaymentID, &m.MerchantID, &m.AmountMinor, &m.Currency,
		&m.Status, &m.ReasonCode, &m.EvidenceDue, &m.CreatedAt, &m.UpdatedAt, &m.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan dispute: %w", err)
	}
	return toDomainDispute(m), nil
}
