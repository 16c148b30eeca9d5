package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookDeliveryStatus is the state of one queued merchant notification.
type WebhookDeliveryStatus string

const (
	DeliveryPending   WebhookDeliveryStatus = "PENDING"
	DeliveryDelivered WebhookDeliveryStatus = "DELIVERED"
	DeliveryAbandoned WebhookDeliveryStatus = "ABANDONED"
)

// WebhookDelivery is one event queued for delivery to a merchant endpoint.
// Payload holds the exact bytes that will be signed and posted; signatures
// are computed over these bytes, never over a re-marshalled copy.
type WebhookDelivery struct {
	ID         uuid.UUID
	MerchantID string
	EventID    string
	EventType  EventType
	URL        string
	Payload    []byte

	Status        WebhookDeliveryStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeliveredAt *time.Time
}

// NewWebhookDelivery queues an event for a merchant endpoint, due immediately.
func NewWebhookDelivery(merchantID, url string, evt Event, payload []byte) *WebhookDelivery {
	now := time.Now().UTC()
	return &WebhookDelivery{
		ID:            uuid.New(),
		MerchantID:    merchantID,
		EventID:       evt.EventID,
		EventType:     evt.EventType,
		URL:           url,
		Payload:       payload,
		Status:        DeliveryPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MarkDelivered records a 2xx response from the merchant endpoint.
func (d *WebhookDelivery) MarkDelivered(at time.Time) {
	d.Status = DeliveryDelivered
	d.DeliveredAt = &at
	d.UpdatedAt = at
}

// Reschedule records a failed attempt and sets the next due time.
func (d *WebhookDelivery) Reschedule(nextAt time.Time, cause string) {
	d.Attempts++
	d.NextAttemptAt = nextAt
	d.LastError = &cause
	d.UpdatedAt = time.Now().UTC()
}

// Abandon gives up after the attempt budget is spent. Abandoned deliveries
// surface in the audit trail, never silently disappear.
func (d *WebhookDelivery) Abandon(cause string) {
	d.Attempts++
	d.Status = DeliveryAbandoned
	d.LastError = &cause
	d.UpdatedAt = time.Now().UTC()
}
