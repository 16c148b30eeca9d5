package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/idempotency"
)

// checkIdempotency resolves the key before a pipeline runs. A replayed result
// comes back non-nil; OutcomeProceed returns (nil, nil) and the caller owns
// the reservation until it stores a result or releases the lock. An empty key
// runs the request unguarded.
func checkIdempotency(ctx context.Context, store *idempotency.Store, merchantID, key, requestHash string) (*Result, error) {
	if key == "" {
		return nil, nil
	}
	res, err := store.CheckOrReserve(ctx, merchantID, key, requestHash)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, application.NewInternalError(err)
	}
	switch res.Outcome {
	case idempotency.OutcomeReplay:
		r := replay(res.Stored)
		return &r, nil
	case idempotency.OutcomeMismatch:
		return nil, application.NewIdempotencyConflictError()
	case idempotency.OutcomeInFlight:
		return nil, application.NewRequestInFlightError()
	}
	return nil, nil
}

// releaseReservation frees the key without storing a result, so a corrected
// retry can run. Used on paths that never reached persistence.
func releaseReservation(ctx context.Context, store *idempotency.Store, logger *slog.Logger, merchantID, key string) {
	if key == "" {
		return
	}
	if err := store.ReleaseLock(ctx, merchantID, key); err != nil {
		logger.Warn("idempotency release failed",
			"merchant_id", merchantID,
			"error", err)
	}
}

// publishBuffered pushes an outbox-buffered event to the bus right away.
// When the bus does not acknowledge, the entry simply stays in the outbox for
// the worker to replay. A failed mark leaves a duplicate publish for the
// worker; consumers dedup by event id.
func publishBuffered(ctx context.Context, bus application.EventPublisher, outbox application.OutboxRepository, logger *slog.Logger, outboxID int64, evt domain.Event) {
	if err := bus.Publish(ctx, evt); err != nil {
		logger.Warn("event publish deferred to outbox",
			"event_id", evt.EventID,
			"event_type", evt.EventType,
			"error", err)
		return
	}
	if err := outbox.MarkPublished(ctx, outboxID); err != nil {
		logger.Warn("outbox mark-published failed",
			"event_id", evt.EventID,
			"error", err)
	}
}

// normalizeError keeps typed errors intact for the transport layer and wraps
// everything else into the service taxonomy.
func normalizeError(err error) error {
	var svcErr *application.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	var domErr *domain.DomainError
	if errors.As(err, &domErr) {
		return domErr
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if application.IsRetryable(err) {
		return application.NewProvidersDownError(err)
	}
	return application.NewInternalError(err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
