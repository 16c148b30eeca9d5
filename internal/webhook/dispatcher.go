package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/audit"
	"github.com/meridianpay/gateway/internal/config"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/metrics"
)

// Dispatcher posts queued deliveries to merchant endpoints and drives the
// per-delivery retry schedule. Delivery failures never propagate upstream;
// the worst outcome is an abandoned delivery in the audit trail.
type Dispatcher struct {
	webhooks    application.WebhookDeliveryRepository
	merchants   application.MerchantRepository
	audit       *audit.Log
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewDispatcher(
	webhooks application.WebhookDeliveryRepository,
	merchants application.MerchantRepository,
	auditLog *audit.Log,
	cfg config.WebhookConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Dispatcher {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 30 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		webhooks:    webhooks,
		merchants:   merchants,
		audit:       auditLog,
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		metrics:     m,
		logger:      logger,
	}
}

// Dispatch attempts one delivery and persists the outcome: DELIVERED on 2xx,
// rescheduled with exponential backoff on failure, ABANDONED once the attempt
// budget is spent.
func (d *Dispatcher) Dispatch(ctx context.Context, delivery *domain.WebhookDelivery) error {
	err := d.post(ctx, delivery)
	now := time.Now().UTC()

	if err == nil {
		delivery.MarkDelivered(now)
		if updateErr := d.webhooks.Update(ctx, delivery); updateErr != nil {
			return fmt.Errorf("mark webhook delivered: %w", updateErr)
		}
		d.metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
		d.audit.RecordWorker(ctx, domain.AuditWebhookDelivered, "", delivery.MerchantID, map[string]any{
			"event_id":   delivery.EventID,
			"event_type": string(delivery.EventType),
			"attempts":   delivery.Attempts + 1,
		})
		return nil
	}

	if delivery.Attempts+1 >= d.maxAttempts {
		delivery.Abandon(err.Error())
		if updateErr := d.webhooks.Update(ctx, delivery); updateErr != nil {
			return fmt.Errorf("abandon webhook: %w", updateErr)
		}
		d.metrics.WebhookDeliveries.WithLabelValues("abandoned").Inc()
		d.audit.RecordWorker(ctx, domain.AuditWebhookAbandoned, "", delivery.MerchantID, map[string]any{
			"event_id":   delivery.EventID,
			"event_type": string(delivery.EventType),
			"attempts":   delivery.Attempts,
			"last_error": err.Error(),
		})
		d.logger.Error("webhook delivery abandoned",
			"merchant_id", delivery.MerchantID,
			"event_id", delivery.EventID,
			"attempts", delivery.Attempts,
			"error", err)
		return nil
	}

	delivery.Reschedule(now.Add(d.backoff(delivery.Attempts)), err.Error())
	if updateErr := d.webhooks.Update(ctx, delivery); updateErr != nil {
		return fmt.Errorf("reschedule webhook: %w", updateErr)
	}
	d.metrics.WebhookDeliveries.WithLabelValues("retried").Inc()
	d.logger.Warn("webhook delivery failed, rescheduled",
		"merchant_id", delivery.MerchantID,
		"event_id", delivery.EventID,
		"attempt", delivery.Attempts,
		"next_attempt_at", delivery.NextAttemptAt,
		"error", err)
	return nil
}

// backoff doubles the base delay per prior attempt: 30s, 1m, 2m, ... capped
// at one hour.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.baseDelay << uint(attempts)
	if delay > time.Hour || delay <= 0 {
		return time.Hour
	}
	return delay
}

func (d *Dispatcher) post(ctx context.Context, delivery *domain.WebhookDelivery) error {
	merchant, err := d.merchants.FindByID(ctx, delivery.MerchantID)
	if err != nil {
		return fmt.Errorf("resolve merchant: %w", err)
	}
	if merchant == nil {
		return fmt.Errorf("merchant %s not found", delivery.MerchantID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event-ID", delivery.EventID)
	req.Header.Set("X-Webhook-Event-Type", string(delivery.EventType))
	req.Header.Set(SignatureHeader, Sign(merchant.WebhookSecret, delivery.Payload, time.Now().Unix()))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
