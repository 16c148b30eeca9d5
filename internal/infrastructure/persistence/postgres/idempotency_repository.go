package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianpay/gateway/internal/idempotency"
	"github.com/meridianpay/gateway/internal/infrastructure/persistence"
)

// IdempotencyRepository is the durable half of the idempotency store. Saves
// made inside WithinTx commit atomically with the payment they describe.
type IdempotencyRepository struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepository(db *persistence.DB) *IdempotencyRepository {
	return &IdempotencyRepository{pool: db.Pool}
}

func (r *IdempotencyRepository) Get(ctx context.Context, merchantID, key string) (*idempotency.Record, error) {
	query := `
		SELECT merchant_id, key, request_hash, status_code, body, created_at, expires_at
		FROM idempotency_records
		WHERE merchant_id = $1 AND key = $2 AND expires_at > NOW()
	`

	var m idempotencyModel
	err := executor(ctx, r.pool).QueryRow(ctx, query, merchantID, key).Scan(
		&m.MerchantID, &m.Key, &m.RequestHash, &m.StatusCode, &m.Body, &m.CreatedAt, &m.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan idempotency record: %w", err)
	}
	return &idempotency.Record{
		MerchantID:  m.MerchantID,
		Key:         m.Key,
		RequestHash: m.RequestHash,
		StatusCode:  m.StatusCode,
		Body:        m.Body,
		CreatedAt:   m.CreatedAt,
		ExpiresAt:   m.ExpiresAt,
	}, nil
}

func (r *IdempotencyRepository) Save(ctx context.Context, rec *idempotency.Record) error {
	// A lost race on the primary key keeps the first writer's record; the
	// loser's response was produced from the same request.
	query := `
		INSERT INTO idempotency_records (merchant_id, key, request_hash, status_code, body, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (merchant_id, key) DO NOTHING
	`

	_, err := executor(ctx, r.pool).Exec(ctx, query,
		rec.MerchantID, rec.Key, rec.RequestHash, rec.StatusCode, rec.Body, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) PruneExpired(ctx context.Context) (int64, error) {
	tag, err := executor(ctx, r.pool).Exec(ctx, `DELETE FROM idempotency_records WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("prune idempotency records: %w", err)
	}
	return tag.RowsAffected(), nil
}
