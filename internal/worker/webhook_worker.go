package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/webhook"
)

const webhookBatchSize = 50

// WebhookWorker drains due merchant notifications. The dispatcher owns the
// delivery outcome; the worker only paces the queue.
type WebhookWorker struct {
	webhooks   application.WebhookDeliveryRepository
	dispatcher *webhook.Dispatcher
	interval   time.Duration
	logger     *slog.Logger
}

func NewWebhookWorker(
	webhooks application.WebhookDeliveryRepository,
	dispatcher *webhook.Dispatcher,
	interval time.Duration,
	logger *slog.Logger,
) *WebhookWorker {
	return &WebhookWorker{
		webhooks:   webhooks,
		dispatcher: dispatcher,
		interval:   interval,
		logger:     logger,
	}
}

func (w *WebhookWorker) Start(ctx context.Context) {
	w.logger.Info("webhook worker started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook worker stopping")
			return
		case <-ticker.C:
			if err := w.Drain(ctx); err != nil {
				w.logger.Error("webhook drain failed", "error", err)
			}
		}
	}
}

// Drain dispatches one batch of due deliveries.
func (w *WebhookWorker) Drain(ctx context.Context) error {
	due, err := w.webhooks.Due(ctx, time.Now().UTC(), webhookBatchSize)
	if err != nil {
		return err
	}

	for _, delivery := range due {
		if err := w.dispatcher.Dispatch(ctx, delivery); err != nil {
			w.logger.Error("webhook dispatch failed",
				"delivery_id", delivery.ID,
				"merchant_id", delivery.MerchantID,
				"event_id", delivery.EventID,
				"error", err)
		}
	}
	return nil
}
