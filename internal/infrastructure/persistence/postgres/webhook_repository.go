package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/infrastructure/persistence"
)

type WebhookDeliveryRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookDeliveryRepository(db *persistence.DB) *WebhookDeliveryRepository {
	return &WebhookDeliveryRepository{pool: db.Pool}
}

func (r *WebhookDeliveryRepository) Enqueue(ctx context.Context, d *domain.WebhookDelivery) error {
	// Payload is stored as the exact bytes that will be signed; jsonb would
	// re-order keys and break the signature.
	query := `
		INSERT INTO webhook_deliveries (
			id, merchant_id, event_id, event_type, url, payload,
			status, attempts, next_attempt_at, last_error, created_at, updated_at, delivered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (event_id, merchant_id) DO NOTHING
	`

	_, err := executor(ctx, r.pool).Exec(ctx, query,
		d.ID, d.MerchantID, d.EventID, string(d.EventType), d.URL, d.Payload,
		string(d.Status), d.Attempts, d.NextAttemptAt, d.LastError, d.CreatedAt, d.UpdatedAt, d.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue webhook delivery: %w", err)
	}
	return nil
}

func (r *WebhookDeliveryRepository) Due(ctx context.Context, now time.Time, limit int) ([]*domain.WebhookDelivery, error) {
	query := `
		SELECT id, merchant_id, event_id, event_type, url, payload,
		       status, attempts, next_attempt_at, last_error, created_at, updated_at, delivered_at
		FROM webhook_deliveries
		WHERE status = $1 AND next_attempt_at <= $2
		ORDER BY next_attempt_at ASC
		LIMIT $3
	`

	rows, err := executor(ctx, r.pool).Query(ctx, query, string(domain.DeliveryPending), now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due webhook deliveries: %w", err)
	}
	deliveries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.WebhookDelivery, error) {
		var m webhookModel
		if err := row.Scan(
			&m.ID, &m.MerchantID, &m.EventID, &m.EventType, &m.URL, &m.Payload,
			&m.Status, &m.Attempts, &m.NextAttemptAt, &m.LastError, &m.CreatedAt, &m.UpdatedAt, &m.DeliveredAt,
		); err != nil {
			return nil, err
		}
		return &domain.WebhookDelivery{
			ID:            m.ID,
			MerchantID:    m.MerchantID,
			EventID:       m.EventID,
			EventType:     domain.EventType(m.EventType),
			URL:           m.URL,
			Payload:       m.Payload,
			Status:        domain.WebhookDeliveryStatus(m.Status),
			Attempts:      m.Attempts,
			NextAttemptAt: m.NextAttemptAt,
			LastError:     m.LastError,
			CreatedAt:     m.CreatedAt,
			UpdatedAt:     m.UpdatedAt,
			DeliveredAt:   m.DeliveredAt,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan webhook deliveries: %w", err)
	}
	return deliveries, nil
}

func (r *WebhookDeliveryRepository) Update(ctx context.Context, d *domain.WebhookDelivery) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $1, attempts = $2, next_attempt_at = $3, last_error = $4,
		    updated_at = $5, delivered_at = $6
		WHERE id = $7
	`

	tag, err := executor(ctx, r.pool).Exec(ctx, query,
		string(d.Status), d.Attempts, d.NextAttemptAt, d.LastError,
		d.UpdatedAt, d.DeliveredAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook delivery %s: %w", d.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update webhook delivery %s: no row", d.ID)
	}
	return nil
}
