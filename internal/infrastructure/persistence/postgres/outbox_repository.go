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

// OutboxRepository buffers events the bus did not acknowledge. Enqueue runs
// inside the caller's transaction so an event row commits with the state
// change it announces.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(db *persistence.DB) *OutboxRepository {
	return &OutboxRepository{pool: db.Pool}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, evt domain.Event) (int64, error) {
	payload, err := marshalJSON(evt.Payload)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO outbox_events (
			event_id, event_type, schema_version, occurred_at,
			correlation_id, trace_id, partition_key, payload,
			attempts, next_attempt_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10)
		RETURNING id
	`

	now := time.Now().UTC()
	var id int64
	err = executor(ctx, r.pool).QueryRow(ctx, query,
		evt.EventID, string(evt.EventType), evt.SchemaVersion, evt.OccurredAt,
		evt.CorrelationID, evt.TraceID, evt.PartitionKey, payload,
		now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue outbox event: %w", err)
	}
	return id, nil
}

// Due returns unpublished entries whose next attempt has come, oldest first,
// so replays preserve insertion order per partition key.
func (r *OutboxRepository) Due(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error) {
	query := `
		SELECT id, event_id, event_type, schema_version, occurred_at,
		       correlation_id, trace_id, partition_key, payload,
		       attempts, next_attempt_at, published_at, last_error, created_at
		FROM outbox_events
		WHERE published_at IS NULL AND next_attempt_at <= $1
		ORDER BY id ASC
		LIMIT $2
	`

	rows, err := executor(ctx, r.pool).Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due outbox events: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OutboxEvent, error) {
		var m outboxModel
		if err := row.Scan(
			&m.ID, &m.EventID, &m.EventType, &m.SchemaVersion, &m.OccurredAt,
			&m.CorrelationID, &m.TraceID, &m.PartitionKey, &m.Payload,
			&m.Attempts, &m.NextAttemptAt, &m.PublishedAt, &m.LastError, &m.CreatedAt,
		); err != nil {
			return domain.OutboxEvent{}, err
		}
		payload, err := unmarshalJSON(m.Payload)
		if err != nil {
			return domain.OutboxEvent{}, err
		}
		return domain.OutboxEvent{
			ID: m.ID,
			Event: domain.Event{
				EventID:       m.EventID,
				EventType:     domain.EventType(m.EventType),
				SchemaVersion: m.SchemaVersion,
				OccurredAt:    m.OccurredAt,
				CorrelationID: m.CorrelationID,
				TraceID:       m.TraceID,
				PartitionKey:  m.PartitionKey,
				Payload:       payload,
			},
			Attempts:      m.Attempts,
			NextAttemptAt: m.NextAttemptAt,
			PublishedAt:   m.PublishedAt,
			LastError:     m.LastError,
			CreatedAt:     m.CreatedAt,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan outbox events: %w", err)
	}
	return entries, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id int64) error {
	query := `UPDATE outbox_events SET published_at = NOW() WHERE id = $1 AND published_at IS NULL`
	if _, err := executor(ctx, r.pool).Exec(ctx, query, id); err != nil {
		return fmt.Errorf("mark outbox event %d published: %w", id, err)
	}
	return nil
}

func (r *OutboxRepository) Reschedule(ctx context.Context, id int64, nextAt time.Time, cause string) error {
	query := `
		UPDATE outbox_events
		SET attempts = attempts + 1, next_attempt_at = $1, last_error = $2
		WHERE id = $3
	`
	if _, err := executor(ctx, r.pool).Exec(ctx, query, nextAt, cause, id); err != nil {
		return fmt.Errorf("reschedule outbox event %d: %w", id, err)
	}
	return nil
}

func (r *OutboxRepository) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := executor(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE published_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending outbox events: %w", err)
	}
	return n, nil
}
