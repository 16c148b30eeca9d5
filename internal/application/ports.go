// Package application holds the service layer's ports and error taxonomy.
// Services orchestrate the domain through these interfaces; infrastructure
// packages implement them.
package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/psp"
)

// TxRunner executes fn inside one database transaction. Repository calls
// made with the ctx passed to fn join that transaction; the transaction
// commits when fn returns nil and rolls back otherwise.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PaymentRepository persists the payment ledger.
type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	Update(ctx context.Context, p *domain.Payment) error
	FindByPaymentID(ctx context.Context, paymentID string) (*domain.Payment, error)

	// FindByPaymentIDForUpdate takes the row lock that serializes all
	// monetary mutations of one payment. Valid only inside a TxRunner
	// transaction.
	FindByPaymentIDForUpdate(ctx context.Context, paymentID string) (*domain.Payment, error)

	List(ctx context.Context, filter TransactionFilter) ([]*domain.Payment, int64, error)

	// CapturedForSettlement returns captured, unbatched payments older
	// than the cut-off, oldest first.
	CapturedForSettlement(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Payment, error)
}

// TransactionFilter narrows and pages the transaction listing.
type TransactionFilter struct {
	MerchantID string
	Status     domain.PaymentStatus
	Currency   string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// RefundRepository persists refunds. SumActive is the refund ledger check:
// PENDING and COMPLETED refunds both count against the captured amount so
// that concurrent refunds cannot overshoot.
type RefundRepository interface {
	Create(ctx context.Context, r *domain.Refund) error
	Update(ctx context.Context, r *domain.Refund) error
	FindByRefundID(ctx context.Context, refundID string) (*domain.Refund, error)
	ListByPaymentID(ctx context.Context, paymentID string) ([]*domain.Refund, error)
	SumActive(ctx context.Context, paymentID string) (int64, error)
}

// OutboxRepository is the durable buffer events fall back to when the bus
// does not acknowledge a publish.
type OutboxRepository interface {
	Enqueue(ctx context.Context, evt domain.Event) (int64, error)
	Due(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id int64) error
	Reschedule(ctx context.Context, id int64, nextAt time.Time, cause string) error
	PendingCount(ctx context.Context) (int64, error)
}

// SettlementRepository persists batches and the adjustment lines lost
// disputes produce.
type SettlementRepository interface {
	CreateBatch(ctx context.Context, b *domain.SettlementBatch) error
	UpdateBatch(ctx context.Context, b *domain.SettlementBatch) error
	FindBatch(ctx context.Context, batchID string) (*domain.SettlementBatch, error)
	ListBatchesByStatus(ctx context.Context, status domain.SettlementBatchStatus, limit int) ([]*domain.SettlementBatch, error)

	// AssignPayments stamps the batch onto payment rows so they are not
	// picked up by the next cut-off.
	AssignPayments(ctx context.Context, batchID string, paymentIDs []string) error
	PaymentsInBatch(ctx context.Context, batchID string) ([]*domain.Payment, error)

	AddAdjustment(ctx context.Context, adj *domain.SettlementAdjustment) error
	PendingAdjustments(ctx context.Context, merchantID, currency string) ([]*domain.SettlementAdjustment, error)
	MarkAdjustmentsApplied(ctx context.Context, ids []int64, batchID string) error
}

// DisputeRepository persists chargeback cases.
type DisputeRepository interface {
	Create(ctx context.Context, d *domain.Dispute) error
	Update(ctx context.Context, d *domain.Dispute) error
	FindByDisputeID(ctx context.Context, disputeID string) (*domain.Dispute, error)
}

// AuditRepository is append-only; there is deliberately no update or delete.
type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
	ListByPaymentID(ctx context.Context, paymentID string) ([]domain.AuditEntry, error)
}

// CompensationRepository queues undo actions for the background worker.
type CompensationRepository interface {
	Enqueue(ctx context.Context, task *domain.CompensationTask) error
	Due(ctx context.Context, now time.Time, limit int) ([]*domain.CompensationTask, error)
	Update(ctx context.Context, task *domain.CompensationTask) error
}

// DeadLetterRepository records operations the gateway gave up on. Entries
// are only ever added; reconciliation works the table directly.
type DeadLetterRepository interface {
	Add(ctx context.Context, entry *domain.DeadLetter) error
}

// WebhookDeliveryRepository queues merchant notifications.
type WebhookDeliveryRepository interface {
	Enqueue(ctx context.Context, d *domain.WebhookDelivery) error
	Due(ctx context.Context, now time.Time, limit int) ([]*domain.WebhookDelivery, error)
	Update(ctx context.Context, d *domain.WebhookDelivery) error
}

// MerchantRepository resolves API consumers. Lookup is by the SHA-256 hash
// of the presented key, never the key itself.
type MerchantRepository interface {
	FindByID(ctx context.Context, merchantID string) (*domain.Merchant, error)
	FindByAPIKeyHash(ctx context.Context, keyHash string) (*domain.Merchant, error)
}

// EventPublisher pushes one event to the bus, blocking until the broker
// acknowledges it or the producer's retries run out.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.Event) error
}

// PaymentRouter is the PSP routing fabric: authorize walks providers in
// priority order, everything else is pinned to the provider named by the
// payment row.
type PaymentRouter interface {
	Authorize(ctx context.Context, req psp.AuthRequest) (psp.AuthResult, error)
	Capture(ctx context.Context, provider string, req psp.CaptureRequest) (psp.CaptureResult, error)
	Void(ctx context.Context, provider string, req psp.VoidRequest) (psp.VoidResult, error)
	Refund(ctx context.Context, provider string, req psp.RefundRequest) (psp.RefundResult, error)
}

// TokenizedCard is what the vault returns for a PAN. KeyVersion marks which
// encryption key generation protects the stored blob.
type TokenizedCard struct {
	Token      string
	LastFour   string
	Brand      domain.CardBrand
	KeyVersion int
}

// Tokenizer is the PCI vault boundary. The PAN exists in gateway memory only
// between request decode and the Tokenize call.
//
// Tokenize is stable in the PAN: the same PAN always yields the same token
// and distinct PANs never share one. The vault upholds this with a unique
// index over a keyed PAN hash, so the gateway may treat tokens as card
// identity.
type Tokenizer interface {
	Tokenize(ctx context.Context, card domain.Card) (TokenizedCard, error)
	Detokenize(ctx context.Context, token string) (domain.Card, error)
}

// FraudDecision is the scoring verdict band.
type FraudDecision string

const (
	FraudClean  FraudDecision = "CLEAN"
	FraudReview FraudDecision = "REVIEW"
	FraudBlock  FraudDecision = "BLOCK"
)

// FraudInput carries everything the scorer may look at. No PAN, ever.
type FraudInput struct {
	PaymentID    string
	MerchantID   string
	AmountMinor  int64
	Currency     string
	CardToken    string
	CardLastFour string
	SourceIP     string
}

// FraudResult is a normalized scoring outcome. Degraded marks scores that
// came from the local rule fallback instead of the scoring service.
type FraudResult struct {
	Score          float64
	Decision       FraudDecision
	RequireThreeDS bool
	TriggeredRules []string
	Degraded       bool
}

// FraudScorer evaluates a payment before any provider is contacted.
type FraudScorer interface {
	Evaluate(ctx context.Context, in FraudInput) (FraudResult, error)
}

// ThreeDSStatus is the authentication verdict.
type ThreeDSStatus string

const (
	ThreeDSAuthenticated     ThreeDSStatus = "AUTHENTICATED"
	ThreeDSFailed            ThreeDSStatus = "FAILED"
	ThreeDSChallengeRequired ThreeDSStatus = "CHALLENGE_REQUIRED"
)

// ThreeDSRequest starts an authentication for a tokenized card.
type ThreeDSRequest struct {
	PaymentID   string
	MerchantID  string
	AmountMinor int64
	Currency    string
	CardToken   string
}

// ThreeDSResult carries the proof the PSP wants on authenticated flows.
type ThreeDSResult struct {
	Status       ThreeDSStatus
	CAVV         string
	ECI          string
	XID          string
	ChallengeURL string
}

// ThreeDSProvider runs payer authentication.
type ThreeDSProvider interface {
	Initiate(ctx context.Context, req ThreeDSRequest) (ThreeDSResult, error)
	Complete(ctx context.Context, xid, response string) (ThreeDSResult, error)
}

// BatchSubmission is the settlement file handed to the acquirer.
type BatchSubmission struct {
	BatchID        string
	MerchantID     string
	Currency       string
	SettlementDate time.Time
	GrossMinor     int64
	NetMinor       int64
	PaymentCount   int
	PaymentIDs     []string
}

// SettlementReport is the acquirer's view of a processed batch. Amounts are
// decimals in major units; reconciliation converts them to minor units and
// never passes through float64.
type SettlementReport struct {
	AcquirerRef string
	Lines       []domain.AcquirerReportLine
	TotalMajor  decimal.Decimal
	Ready       bool
}

// AcquirerClient submits settlement batches and fetches processing reports.
type AcquirerClient interface {
	SubmitBatch(ctx context.Context, sub BatchSubmission) (acquirerRef string, err error)
	FetchReport(ctx context.Context, acquirerRef string) (*SettlementReport, error)
}

// Counter is a sliding window counter, shared by fraud velocity rules and
// request rate limiting.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}
