package postgres

import (
	"time"

	"github.com/google/uuid"
)

// Row models mirror table columns one to one. JSONB columns travel as raw
// bytes; mappers convert them to and from the domain's maps.

type paymentModel struct {
	ID        uuid.UUID
	PaymentID string

	MerchantID  string
	AmountMinor int64
	Currency    string
	Status      string

	CardToken    string
	CardLastFour string
	CardBrand    string

	PSPName       *string
	PSPAuthRef    *string
	PSPCaptureRef *string
	PSPVoidRef    *string

	FraudScore     *float64
	FraudDegraded  bool
	ThreeDSOutcome *string
	DeclineReason  *string

	RefundedMinor int64
	CorrelationID string
	BatchID       *string

	CreatedAt    time.Time
	UpdatedAt    time.Time
	AuthorizedAt *time.Time
	CapturedAt   *time.Time
	SettledAt    *time.Time
}

type refundModel struct {
	ID          uuid.UUID
	RefundID    string
	PaymentID   string
	MerchantID  string
	AmountMinor int64
	Currency    string
	Status      string
	PSPRef      *string
	Reason      string

	CorrelationID string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// idempotencyModel enforces at-most-once semantics via the primary key on
// (merchant_id, key). Body holds the stored response byte for byte.
type idempotencyModel struct {
	MerchantID  string
	Key         string
	RequestHash string
	StatusCode  int
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

type outboxModel struct {
	ID            int64
	EventID       string
	EventType     string
	SchemaVersion int
	OccurredAt    time.Time
	CorrelationID string
	TraceID       string
	PartitionKey  string
	Payload       []byte

	Attempts      int
	NextAttemptAt time.Time
	PublishedAt   *time.Time
	LastError     *string
	CreatedAt     time.Time
}

type batchModel struct {
	ID             uuid.UUID
	BatchID        string
	MerchantID     string
	Currency       string
	SettlementDate time.Time
	Status         string

	GrossMinor   int64
	FeeMinor     int64
	NetMinor     int64
	PaymentCount int

	AcquirerRef *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	SubmittedAt *time.Time
	SettledAt   *time.Time
}

type adjustmentModel struct {
	ID          int64
	MerchantID  string
	Currency    string
	AmountMinor int64
	Reason      string
	DisputeID   *string
	BatchID     *string
	CreatedAt   time.Time
	AppliedAt   *time.Time
}

type disputeModel struct {
	ID          uuid.UUID
	DisputeID   string
	PaymentID   string
	MerchantID  string
	AmountMinor int64
	Currency    string
	Status      string
	ReasonCode  string
	EvidenceDue *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
}

type auditModel struct {
	ID            uuid.UUID
	Action        string
	PaymentID     string
	MerchantID    string
	ActorType     string
	ActorID       string
	CorrelationID string
	Details       []byte
	RecordedAt    time.Time
}

type compensationModel struct {
	ID        int64
	PaymentID string
	Action    string
	Params    []byte

	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastError     *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type deadLetterModel struct {
	ID           int64
	Operation    string
	PaymentID    string
	Payload      []byte
	FailureChain string
	CreatedAt    time.Time
}

type webhookModel struct {
	ID         uuid.UUID
	MerchantID string
	EventID    string
	EventType  string
	URL        string
	Payload    []byte

	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastError     *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeliveredAt *time.Time
}

type merchantModel struct {
	MerchantID      string
	Name            string
	APIKeyHash      string
	WebhookURL      string
	WebhookSecret   string
	RateLimitPerMin int
	Active          bool
	CreatedAt       time.Time
}
