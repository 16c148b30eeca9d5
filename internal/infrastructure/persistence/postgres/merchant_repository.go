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

const merchantColumns = `merchant_id, name, api_key_hash, webhook_url, webhook_secret,
	       rate_limit_per_min, active, created_at`

type MerchantRepository struct {
	pool *pgxpool.Pool
}

func NewMerchantRepository(db *persistence.DB) *MerchantRepository {
	return &MerchantRepository{pool: db.Pool}
}

func (r *MerchantRepository) FindByID(ctx context.Context, merchantID string) (*domain.Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE merchant_id = $1`
	row := executor(ctx, r.pool).QueryRow(ctx, query, merchantID)
	return scanMerchant(row)
}

func (r *MerchantRepository) FindByAPIKeyHash(ctx context.Context, keyHash string) (*domain.Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE api_key_hash = $1 AND active`
	row := executor(ctx, r.pool).QueryRow(ctx, query, keyHash)
	return scanMerchant(row)
}

func scanMerchant(row pgx.Row) (*domain.Merchant, error) {
	var m merchantModel
	err := row.Scan(
		&m.MerchantID, &m.Name, &m.APIKeyHash, &m.WebhookURL, &m.WebhookSecret,
		&m.RateLimitPerMin, &m.Active, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan merchant: %w", err)
	}
	return &domain.Merchant{
		MerchantID:      m.MerchantID,
		Name:            m.Name,
		APIKeyHash:      m.APIKeyHash,
		WebhookURL:      m.WebhookURL,
		WebhookSecret:   m.WebhookSecret,
		RateLimitPerMin: m.RateLimitPerMin,
		Active:          m.Active,
		CreatedAt:       m.CreatedAt,
	}, nil
}
