package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/domain"
)

// NotifiedEventTypes are the lifecycle events merchants receive. Internal
// events like settlement mismatches stay off merchant endpoints.
var NotifiedEventTypes = []domain.EventType{
	domain.EventPaymentAuthorized,
	domain.EventPaymentCaptured,
	domain.EventPaymentDeclined,
	domain.EventPaymentFailed,
	domain.EventPaymentCancelled,
	domain.EventPaymentSettled,
	domain.EventRefundCompleted,
	domain.EventRefundFailed,
	domain.EventDisputeOpened,
	domain.EventDisputeClosed,
}

// Fanout turns consumed bus events into queued merchant deliveries. The
// payload bytes are frozen at enqueue time so the signature stays stable
// across retries.
type Fanout struct {
	webhooks  application.WebhookDeliveryRepository
	merchants application.MerchantRepository
	logger    *slog.Logger
}

func NewFanout(webhooks application.WebhookDeliveryRepository, merchants application.MerchantRepository, logger *slog.Logger) *Fanout {
	return &Fanout{webhooks: webhooks, merchants: merchants, logger: logger}
}

// Handle queues one event for the owning merchant. Merchants without a
// webhook URL are skipped. Enqueue is idempotent on (event id, merchant id),
// so redelivered bus events do not produce duplicate notifications.
func (f *Fanout) Handle(ctx context.Context, evt domain.Event) error {
	merchantID, _ := evt.Payload["merchant_id"].(string)
	if merchantID == "" {
		f.logger.Warn("event without merchant_id, skipping webhook fanout",
			"event_id", evt.EventID, "event_type", string(evt.EventType))
		return nil
	}

	merchant, err := f.merchants.FindByID(ctx, merchantID)
	if err != nil {
		return fmt.Errorf("resolve merchant %s: %w", merchantID, err)
	}
	if merchant == nil || merchant.WebhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(webhookEnvelope{
		EventID:    evt.EventID,
		EventType:  string(evt.EventType),
		OccurredAt: evt.OccurredAt.Format("2006-01-02T15:04:05.000Z07:00"),
		Data:       evt.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	delivery := domain.NewWebhookDelivery(merchantID, merchant.WebhookURL, evt, payload)
	if err := f.webhooks.Enqueue(ctx, delivery); err != nil {
		return fmt.Errorf("enqueue webhook delivery: %w", err)
	}
	return nil
}

type webhookEnvelope struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	OccurredAt string         `json:"occurred_at"`
	Data       map[string]any `json:"data"`
}
