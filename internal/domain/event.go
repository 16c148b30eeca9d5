package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a payment lifecycle event on the bus.
type EventType string

const (
	EventPaymentAuthorized EventType = "payment.authorized"
	EventPaymentCaptured   EventType = "payment.captured"
	EventPaymentDeclined   EventType = "payment.declined"
	EventPaymentFailed     EventType = "payment.failed"
	EventPaymentCancelled  EventType = "payment.cancelled"
	EventPaymentSettled    EventType = "payment.settled"
	EventRefundCompleted   EventType = "refund.completed"
	EventRefundFailed      EventType = "refund.failed"
	EventDisputeOpened     EventType = "dispute.opened"
	EventDisputeClosed     EventType = "dispute.closed"

	EventSettlementSettled  EventType = "settlement.settled"
	EventSettlementMismatch EventType = "settlement.mismatch"
)

// Event is the envelope every message on the bus travels in. PartitionKey is
// always the payment identifier so that one payment's events stay ordered on
// a single partition; settlement events partition on the batch identifier
// instead.
type Event struct {
	EventID       string         `json:"event_id"`
	EventType     EventType      `json:"event_type"`
	SchemaVersion int            `json:"schema_version"`
	OccurredAt    time.Time      `json:"occurred_at"`
	CorrelationID string         `json:"correlation_id"`
	TraceID       string         `json:"trace_id"`
	PartitionKey  string         `json:"partition_key"`
	Payload       map[string]any `json:"payload"`
}

// NewEvent builds an envelope partitioned on the given key.
func NewEvent(eventType EventType, partitionKey, correlationID, traceID string, payload map[string]any) Event {
	return Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		SchemaVersion: 1,
		OccurredAt:    time.Now().UTC(),
		CorrelationID: correlationID,
		TraceID:       traceID,
		PartitionKey:  partitionKey,
		Payload:       payload,
	}
}

// PaymentEventPayload renders the standard payload for payment lifecycle
// events. Card data appears only as the last four digits.
func PaymentEventPayload(p *Payment) map[string]any {
	payload := map[string]any{
		"payment_id":     p.PaymentID,
		"merchant_id":    p.MerchantID,
		"amount_minor":   p.AmountMinor,
		"currency":       p.Currency,
		"status":         string(p.Status),
		"card_last_four": p.CardLastFour,
		"card_brand":     string(p.CardBrand),
	}
	if p.PSPName != nil {
		payload["psp"] = *p.PSPName
	}
	if p.DeclineReason != nil {
		payload["decline_reason"] = string(*p.DeclineReason)
	}
	return payload
}

// RefundEventPayload renders the payload for refund outcome events.
func RefundEventPayload(r *Refund, remainingMinor int64) map[string]any {
	return map[string]any{
		"refund_id":       r.RefundID,
		"payment_id":      r.PaymentID,
		"merchant_id":     r.MerchantID,
		"amount_minor":    r.AmountMinor,
		"currency":        r.Currency,
		"status":          string(r.Status),
		"remaining_minor": remainingMinor,
	}
}

// DisputeEventPayload renders the payload for dispute lifecycle events.
func DisputeEventPayload(d *Dispute) map[string]any {
	return map[string]any{
		"dispute_id":   d.DisputeID,
		"payment_id":   d.PaymentID,
		"merchant_id":  d.MerchantID,
		"amount_minor": d.AmountMinor,
		"currency":     d.Currency,
		"status":       string(d.Status),
		"reason_code":  d.ReasonCode,
	}
}

// BatchEventPayload renders the payload for settlement batch events.
func BatchEventPayload(b *SettlementBatch) map[string]any {
	return map[string]any{
		"batch_id":      b.BatchID,
		"merchant_id":   b.MerchantID,
		"currency":      b.Currency,
		"status":        string(b.Status),
		"gross_minor":   b.GrossMinor,
		"net_minor":     b.NetMinor,
		"payment_count": b.PaymentCount,
	}
}

// OutboxEvent is an event buffered in durable storage because the bus could
// not acknowledge it at publish time. The outbox worker replays entries in
// insertion order until they are acknowledged.
type OutboxEvent struct {
	ID            int64
	Event         Event
	Attempts      int
	NextAttemptAt time.Time
	PublishedAt   *time.Time
	LastError     *string
	CreatedAt     time.Time
}
