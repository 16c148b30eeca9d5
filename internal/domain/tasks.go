package domain

import "time"

// Compensation actions executed by the background worker.
const (
	CompensationVoidAuth = "psp.void_authorization"
)

// CompensationTaskStatus is the state of one queued compensation.
type CompensationTaskStatus string

const (
	CompensationPending   CompensationTaskStatus = "PENDING"
	CompensationCompleted CompensationTaskStatus = "COMPLETED"
	CompensationAbandoned CompensationTaskStatus = "ABANDONED"
)

// CompensationTask is a queued undo action, recorded when a pipeline step
// fails after an earlier step already had side effects. Tasks are retried in
// the background; ones that exhaust their budget are dead-lettered for
// reconciliation.
type CompensationTask struct {
	ID        int64
	PaymentID string
	Action    string
	Params    map[string]any

	Status        CompensationTaskStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCompensationTask queues an undo action for a payment, due immediately.
func NewCompensationTask(paymentID, action string, params map[string]any) *CompensationTask {
	now := time.Now().UTC()
	return &CompensationTask{
		PaymentID:     paymentID,
		Action:        action,
		Params:        params,
		Status:        CompensationPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Complete records a successful undo.
func (t *CompensationTask) Complete() {
	t.Status = CompensationCompleted
	t.UpdatedAt = time.Now().UTC()
}

// Reschedule records a failed attempt and sets the next due time.
func (t *CompensationTask) Reschedule(nextAt time.Time, cause string) {
	t.Attempts++
	t.NextAttemptAt = nextAt
	t.LastError = &cause
	t.UpdatedAt = time.Now().UTC()
}

// Abandon gives up after the attempt budget is spent; the caller must
// dead-letter the task for manual reconciliation.
func (t *CompensationTask) Abandon(cause string) {
	t.Attempts++
	t.Status = CompensationAbandoned
	t.LastError = &cause
	t.UpdatedAt = time.Now().UTC()
}

// DeadLetter is an operation the gateway gave up on after exhausting retries.
// Entries feed the manual reconciliation queue and are never deleted by the
// gateway itself.
type DeadLetter struct {
	ID        int64
	Operation string
	PaymentID string
	Payload   map[string]any

	// FailureChain is the final error, with wrapped causes flattened into
	// one string for the operator.
	FailureChain string

	CreatedAt time.Time
}
