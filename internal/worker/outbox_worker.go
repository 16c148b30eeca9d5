// Package worker holds the background loops: outbox replay, saga
// compensation, webhook delivery and settlement. Every worker runs a ticker
// until its context is cancelled and logs per-item failures without stopping
// the loop.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/metrics"
)

const outboxBatchSize = 100

// OutboxWorker replays events the bus did not acknowledge at publish time.
// Entries stay in the outbox until the broker acks them, so a bus outage
// delays events instead of losing them; consumers dedup by event id.
type OutboxWorker struct {
	outbox   application.OutboxRepository
	bus      application.EventPublisher
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewOutboxWorker(
	outbox application.OutboxRepository,
	bus application.EventPublisher,
	interval time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *OutboxWorker {
	return &OutboxWorker{
		outbox:   outbox,
		bus:      bus,
		interval: interval,
		metrics:  m,
		logger:   logger,
	}
}

func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info("outbox worker started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopping")
			return
		case <-ticker.C:
			if err := w.Drain(ctx); err != nil {
				w.logger.Error("outbox drain failed", "error", err)
			}
			w.observePending(ctx)
		}
	}
}

// Drain runs one replay pass over the due entries.
func (w *OutboxWorker) Drain(ctx context.Context) error {
	due, err := w.outbox.Due(ctx, time.Now().UTC(), outboxBatchSize)
	if err != nil {
		return err
	}

	for _, entry := range due {
		if err := w.publish(ctx, entry.Event); err != nil {
			next := time.Now().UTC().Add(w.replayDelay(entry.Attempts + 1))
			if rerr := w.outbox.Reschedule(ctx, entry.ID, next, err.Error()); rerr != nil {
				w.logger.Error("outbox reschedule failed", "outbox_id", entry.ID, "error", rerr)
			}
			w.logger.Warn("outbox replay failed",
				"outbox_id", entry.ID,
				"event_id", entry.Event.EventID,
				"attempts", entry.Attempts+1,
				"next_attempt_at", next,
				"error", err)
			continue
		}
		if err := w.outbox.MarkPublished(ctx, entry.ID); err != nil {
			// The event reached the bus; a duplicate replay is handled by
			// consumer dedup.
			w.logger.Error("outbox mark-published failed", "outbox_id", entry.ID, "error", err)
		}
	}
	return nil
}

// publish pushes one event with short in-process backoff, so a momentary
// broker hiccup does not cost a full reschedule cycle.
func (w *OutboxWorker) publish(ctx context.Context, evt domain.Event) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 10 * time.Second

	return backoff.Retry(func() error {
		return w.bus.Publish(ctx, evt)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, 3), ctx))
}

// replayDelay doubles per attempt, capped at ten minutes. The durable
// schedule backs off much slower than the in-process one; a dead broker
// should not be hammered every tick.
func (w *OutboxWorker) replayDelay(attempts int) time.Duration {
	delay := 5 * time.Second << uint(attempts-1)
	if delay > 10*time.Minute || delay <= 0 {
		return 10 * time.Minute
	}
	return delay
}

func (w *OutboxWorker) observePending(ctx context.Context) {
	pending, err := w.outbox.PendingCount(ctx)
	if err != nil {
		w.logger.Warn("outbox pending count failed", "error", err)
		return
	}
	w.metrics.OutboxPending.Set(float64(pending))
}
