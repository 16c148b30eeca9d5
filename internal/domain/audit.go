package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction names the operation an audit entry records.
type AuditAction string

const (
	AuditPaymentAuthorized AuditAction = "payment.authorized"
	AuditPaymentDeclined   AuditAction = "payment.declined"
	AuditPaymentFailed     AuditAction = "payment.failed"
	AuditPaymentCaptured   AuditAction = "payment.captured"
	AuditPaymentVoided     AuditAction = "payment.voided"
	AuditPaymentSettled    AuditAction = "payment.settled"
	AuditRefundRequested   AuditAction = "refund.requested"
	AuditRefundCompleted   AuditAction = "refund.completed"
	AuditRefundFailed      AuditAction = "refund.failed"
	AuditDisputeOpened     AuditAction = "dispute.opened"
	AuditDisputeClosed     AuditAction = "dispute.closed"
	AuditCompensationRun   AuditAction = "compensation.run"
	AuditWebhookDelivered  AuditAction = "webhook.delivered"
	AuditWebhookAbandoned  AuditAction = "webhook.abandoned"
	AuditBatchCreated      AuditAction = "settlement.batch_created"
	AuditBatchSubmitted    AuditAction = "settlement.batch_submitted"
	AuditBatchSettled      AuditAction = "settlement.batch_settled"
	AuditBatchMismatch     AuditAction = "settlement.batch_mismatch"
)

// Actor types recorded in the audit trail.
const (
	ActorMerchant = "merchant"
	ActorSystem   = "system"
	ActorWorker   = "worker"
)

// AuditEntry is one immutable line of the audit trail. Entries are insert
// only; Details must already be redacted before the entry is constructed.
type AuditEntry struct {
	ID            uuid.UUID
	Action        AuditAction
	PaymentID     string
	MerchantID    string
	ActorType     string
	ActorID       string
	CorrelationID string
	Details       map[string]any
	RecordedAt    time.Time
}

// NewAuditEntry builds an audit line for the given action. RecordedAt is
// assigned here so entries order consistently within a request.
func NewAuditEntry(action AuditAction, paymentID, merchantID, actorType, actorID, correlationID string, details map[string]any) AuditEntry {
	return AuditEntry{
		ID:            uuid.New(),
		Action:        action,
		PaymentID:     paymentID,
		MerchantID:    merchantID,
		ActorType:     actorType,
		ActorID:       actorID,
		CorrelationID: correlationID,
		Details:       details,
		RecordedAt:    time.Now().UTC(),
	}
}
