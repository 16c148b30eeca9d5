package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DisputeStatus is the state of a chargeback case.
type DisputeStatus string

const (
	DisputeOpen            DisputeStatus = "OPEN"
	DisputePendingEvidence DisputeStatus = "PENDING_EVIDENCE"
	DisputeWon             DisputeStatus = "WON"
	DisputeLost            DisputeStatus = "LOST"
)

// Dispute is a chargeback raised by the issuer against a settled payment.
// Funds are withheld from the next settlement batch while the case is open.
type Dispute struct {
	ID          uuid.UUID
	DisputeID   string
	PaymentID   string
	MerchantID  string
	AmountMinor int64
	Currency    string
	Status      DisputeStatus
	ReasonCode  string

	EvidenceDue *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

// NewDispute opens a chargeback case against a payment.
func NewDispute(payment *Payment, amountMinor int64, reasonCode string, evidenceDue time.Time) (*Dispute, error) {
	if amountMinor <= 0 || amountMinor > payment.AmountMinor {
		return nil, NewInvalidAmountError(amountMinor)
	}
	id := uuid.New()
	now := time.Now().UTC()
	return &Dispute{
		ID:          id,
		DisputeID:   "dsp_" + strings.ReplaceAll(id.String(), "-", ""),
		PaymentID:   payment.PaymentID,
		MerchantID:  payment.MerchantID,
		AmountMinor: amountMinor,
		Currency:    payment.Currency,
		Status:      DisputeOpen,
		ReasonCode:  reasonCode,
		EvidenceDue: &evidenceDue,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanTransitionTo validates a dispute status change.
//
//   - Open → PendingEvidence, Lost
//   - PendingEvidence → Won, Lost
func (d *Dispute) CanTransitionTo(target DisputeStatus) error {
	switch d.Status {
	case DisputeOpen:
		if target == DisputePendingEvidence || target == DisputeLost {
			return nil
		}
	case DisputePendingEvidence:
		if target == DisputeWon || target == DisputeLost {
			return nil
		}
	}
	return NewInvalidDisputeTransitionError(d.Status, target)
}

// SubmitEvidence moves the case to PENDING_EVIDENCE.
func (d *Dispute) SubmitEvidence() error {
	if err := d.CanTransitionTo(DisputePendingEvidence); err != nil {
		return err
	}
	d.Status = DisputePendingEvidence
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// Close resolves the case as WON or LOST.
func (d *Dispute) Close(outcome DisputeStatus, at time.Time) error {
	if outcome != DisputeWon && outcome != DisputeLost {
		return NewInvalidDisputeTransitionError(d.Status, outcome)
	}
	if err := d.CanTransitionTo(outcome); err != nil {
		return err
	}
	d.Status = outcome
	d.ClosedAt = &at
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// Open reports whether the dispute still withholds funds from settlement.
func (d *Dispute) IsOpen() bool {
	return d.Status == DisputeOpen || d.Status == DisputePendingEvidence
}
