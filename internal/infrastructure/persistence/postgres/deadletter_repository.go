package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/infrastructure/persistence"
)

// DeadLetterRepository only inserts. The reconciliation team reads and clears
// the table with their own tooling.
type DeadLetterRepository struct {
	pool *pgxpool.Pool
}

func NewDeadLetterRepository(db *persistence.DB) *DeadLetterRepository {
	return &DeadLetterRepository{pool: db.Pool}
}

func (r *DeadLetterRepository) Add(ctx context.Context, entry *domain.DeadLetter) error {
	payload, err := marshalJSON(entry.Payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO dead_letters (operation, payment_id, payload, failure_chain, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err = executor(ctx, r.pool).QueryRow(ctx, query,
		entry.Operation, entry.PaymentID, payload, entry.FailureChain, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}
