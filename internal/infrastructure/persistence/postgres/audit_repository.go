package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/infrastructure/persistence"
)

// AuditRepository is append-only. There is no update or delete here and the
// table's trigger rejects both, so stored entries read back byte for byte.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(db *persistence.DB) *AuditRepository {
	return &AuditRepository{pool: db.Pool}
}

func (r *AuditRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	details, err := marshalJSON(entry.Details)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_entries (
			id, action, payment_id, merchant_id, actor_type, actor_id,
			correlation_id, details, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = executor(ctx, r.pool).Exec(ctx, query,
		entry.ID, string(entry.Action), entry.PaymentID, entry.MerchantID,
		entry.ActorType, entry.ActorID, entry.CorrelationID, details, entry.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListByPaymentID(ctx context.Context, paymentID string) ([]domain.AuditEntry, error) {
	query := `
		SELECT id, action, payment_id, merchant_id, actor_type, actor_id,
		       correlation_id, details, recorded_at
		FROM audit_entries
		WHERE payment_id = $1
		ORDER BY recorded_at ASC, id ASC
	`

	rows, err := executor(ctx, r.pool).Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuditEntry, error) {
		var m auditModel
		if err := row.Scan(
			&m.ID, &m.Action, &m.PaymentID, &m.MerchantID, &m.ActorType, &m.ActorID,
			&m.CorrelationID, &m.Details, &m.RecordedAt,
		); err != nil {
			return domain.AuditEntry{}, err
		}
		details, err := unmarshalJSON(m.Details)
		if err != nil {
			return domain.AuditEntry{}, err
		}
		return domain.AuditEntry{
			ID:            m.ID,
			Action:        domain.AuditAction(m.Action),
			PaymentID:     m.PaymentID,
			MerchantID:    m.MerchantID,
			ActorType:     m.ActorType,
			ActorID:       m.ActorID,
			CorrelationID: m.CorrelationID,
			Details:       details,
			RecordedAt:    m.RecordedAt,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan audit entries: %w", err)
	}
	return entries, nil
}
