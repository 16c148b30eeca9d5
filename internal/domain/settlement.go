package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementBatchStatus is the state of a daily settlement batch.
type SettlementBatchStatus string

const (
	BatchPending        SettlementBatchStatus = "PENDING"
	BatchProcessing     SettlementBatchStatus = "PROCESSING"
	BatchSettled        SettlementBatchStatus = "SETTLED"
	BatchFailed         SettlementBatchStatus = "FAILED"
	BatchAmountMismatch SettlementBatchStatus = "AMOUNT_MISMATCH"
)

// SettlementBatch groups a merchant's captured payments for one settlement
// day and currency. Amounts are the gateway's own ledger view; the acquirer
// report is reconciled against them.
type SettlementBatch struct {
	ID         uuid.UUID
	BatchID    string
	MerchantID string
	Currency   string

	// SettlementDate is the calendar day (UTC) the batch covers.
	SettlementDate time.Time

	Status SettlementBatchStatus

	GrossMinor int64
	FeeMinor   int64
	NetMinor   int64

	PaymentCount int

	AcquirerRef *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	SubmittedAt *time.Time
	SettledAt   *time.Time
}

// CanTransitionTo validates a settlement batch status change.
//
//   - Pending → Processing
//   - Processing → Settled, Failed, AmountMismatch
//   - AmountMismatch → Processing (manual resubmission after correction)
func (b *SettlementBatch) CanTransitionTo(target SettlementBatchStatus) error {
	switch b.Status {
	case BatchPending:
		if target == BatchProcessing {
			return nil
		}
	case BatchProcessing:
		if target == BatchSettled || target == BatchFailed || target == BatchAmountMismatch {
			return nil
		}
	case BatchAmountMismatch:
		if target == BatchProcessing {
			return nil
		}
	}
	return NewInvalidBatchTransitionError(b.Status, target)
}

// NewSettlementBatch opens a PENDING batch for one merchant, currency and
// settlement day.
func NewSettlementBatch(merchantID, currency string, settlementDate time.Time) *SettlementBatch {
	now := time.Now().UTC()
	return &SettlementBatch{
		ID:             uuid.New(),
		BatchID:        "batch_" + uuid.NewString()[:12],
		MerchantID:     merchantID,
		Currency:       currency,
		SettlementDate: settlementDate,
		Status:         BatchPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Submit marks the batch handed to the acquirer.
func (b *SettlementBatch) Submit(acquirerRef string, at time.Time) error {
	if err := b.CanTransitionTo(BatchProcessing); err != nil {
		return err
	}
	b.Status = BatchProcessing
	b.AcquirerRef = &acquirerRef
	b.SubmittedAt = &at
	b.UpdatedAt = at
	return nil
}

// MarkSettled records a clean reconciliation.
func (b *SettlementBatch) MarkSettled(at time.Time) error {
	if err := b.CanTransitionTo(BatchSettled); err != nil {
		return err
	}
	b.Status = BatchSettled
	b.SettledAt = &at
	b.UpdatedAt = at
	return nil
}

// MarkMismatch flags the batch for manual review after the acquirer report
// disagreed with the ledger.
func (b *SettlementBatch) MarkMismatch(at time.Time) error {
	if err := b.CanTransitionTo(BatchAmountMismatch); err != nil {
		return err
	}
	b.Status = BatchAmountMismatch
	b.UpdatedAt = at
	return nil
}

// SettlementAdjustment is a signed correction applied to a future batch's net
// amount, typically the negative line a lost dispute produces. It never
// touches the original payment row.
type SettlementAdjustment struct {
	ID         int64
	MerchantID string
	Currency   string

	// AmountMinor is negative for debits (lost disputes).
	AmountMinor int64

	Reason    string
	DisputeID *string
	BatchID   *string

	CreatedAt time.Time
	AppliedAt *time.Time
}

// AcquirerReportLine is one row of the acquirer's settlement report. Amounts
// arrive as decimal strings in major units and are compared against the
// gateway's minor-unit ledger without float conversion.
type AcquirerReportLine struct {
	PaymentID   string
	AmountMajor decimal.Decimal
	Currency    string
	SettledAt   time.Time
}

// MinorUnits converts the report line's major-unit amount to minor units for
// the given exponent (2 for most currencies, 0 for JPY-style).
func (l AcquirerReportLine) MinorUnits(exponent int32) (int64, bool) {
	shifted := l.AmountMajor.Shift(exponent)
	if !shifted.IsInteger() {
		return 0, false
	}
	return shifted.IntPart(), true
}

// CurrencyExponent returns the minor-unit exponent for an ISO 4217 code.
// Currencies the gateway does not recognize default to 2.
func CurrencyExponent(currency string) int32 {
	switch currency {
	case "JPY", "KRW", "VND":
		return 0
	case "BHD", "KWD", "OMR":
		return 3
	default:
		return 2
	}
}
