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

type CompensationRepository struct {
	pool *pgxpool.Pool
}

func NewCompensationRepository(db *persistence.DB) *CompensationRepository {
	return &CompensationRepository{pool: db.Pool}
}

func (r *CompensationRepository) Enqueue(ctx context.Context, task *domain.CompensationTask) error {
	params, err := marshalJSON(task.Params)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO compensation_tasks (
			payment_id, action, params, status, attempts, next_attempt_at,
			last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err = executor(ctx, r.pool).QueryRow(ctx, query,
		task.PaymentID, task.Action, params, string(task.Status), task.Attempts,
		task.NextAttemptAt, task.LastError, task.CreatedAt, task.UpdatedAt,
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("enqueue compensation task: %w", err)
	}
	return nil
}

func (r *CompensationRepository) Due(ctx context.Context, now time.Time, limit int) ([]*domain.CompensationTask, error) {
	query := `
		SELECT id, payment_id, action, params, status, attempts, next_attempt_at,
		       last_error, created_at, updated_at
		FROM compensation_tasks
		WHERE status = $1 AND next_attempt_at <= $2
		ORDER BY next_attempt_at ASC
		LIMIT $3
	`

	rows, err := executor(ctx, r.pool).Query(ctx, query, string(domain.CompensationPending), now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due compensation tasks: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.CompensationTask, error) {
		var m compensationModel
		if err := row.Scan(
			&m.ID, &m.PaymentID, &m.Action, &m.Params, &m.Status, &m.Attempts,
			&m.NextAttemptAt, &m.LastError, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		params, err := unmarshalJSON(m.Params)
		if err != nil {
			return nil, err
		}
		return &domain.CompensationTask{
			ID:            m.ID,
			PaymentID:     m.PaymentID,
			Action:        m.Action,
			Params:        params,
			Status:        domain.CompensationTaskStatus(m.Status),
			Attempts:      m.Attempts,
			NextAttemptAt: m.NextAttemptAt,
			LastError:     m.LastError,
			CreatedAt:     m.CreatedAt,
			UpdatedAt:     m.UpdatedAt,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan compensation tasks: %w", err)
	}
	return tasks, nil
}

func (r *CompensationRepository) Update(ctx context.Context, task *domain.CompensationTask) error {
	query := `
		UPDATE compensation_tasks
		SET status = $1, attempts = $2, next_attempt_at = $3, last_error = $4, updated_at = $5
		WHERE id = $6
	`

	tag, err := executor(ctx, r.pool).Exec(ctx, query,
		string(task.Status), task.Attempts, task.NextAttemptAt, task.LastError, task.UpdatedAt, task.ID,
	)
	if err != nil {
		return fmt.Errorf("update compensation task %d: %w", task.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update compensation task %d: no row", task.ID)
	}
	return nil
}
