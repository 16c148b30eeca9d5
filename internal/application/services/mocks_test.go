package services_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/idempotency"
	"github.com/meridianpay/gateway/internal/psp"
)

// memTx serializes "transactions" behind one mutex, which stands in for the
// payment row lock: two pipelines contending for the same payment interleave
// exactly at the points the real gateway releases the lock.
type memTx struct {
	mu sync.Mutex
}

func (t *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}

type memPayments struct {
	mu      sync.Mutex
	rows    map[string]domain.Payment
	creates int

	failCreate error
	failUpdate error
}

func newMemPayments() *memPayments {
	return &memPayments{rows: map[string]domain.Payment{}}
}

func (m *memPayments) Create(_ context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	if _, exists := m.rows[p.PaymentID]; exists {
		return fmt.Errorf("duplicate payment %s", p.PaymentID)
	}
	m.rows[p.PaymentID] = *p
	m.creates++
	return nil
}

func (m *memPayments) Update(_ context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return m.failUpdate
	}
	if _, exists := m.rows[p.PaymentID]; !exists {
		return fmt.Errorf("update of unknown payment %s", p.PaymentID)
	}
	m.rows[p.PaymentID] = *p
	return nil
}

func (m *memPayments) FindByPaymentID(_ context.Context, paymentID string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[paymentID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memPayments) FindByPaymentIDForUpdate(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return m.FindByPaymentID(ctx, paymentID)
}

func (m *memPayments) List(_ context.Context, filter application.TransactionFilter) ([]*domain.Payment, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*domain.Payment
	for id := range m.rows {
		row := m.rows[id]
		if filter.MerchantID != "" && row.MerchantID != filter.MerchantID {
			continue
		}
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		if filter.Currency != "" && row.Currency != filter.Currency {
			continue
		}
		matched = append(matched, &row)
	}
	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (m *memPayments) CapturedForSettlement(_ context.Context, cutoff time.Time, limit int) ([]*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Payment
	for id := range m.rows {
		row := m.rows[id]
		if row.Status == domain.StatusCaptured && row.CapturedAt != nil && row.CapturedAt.Before(cutoff) {
			out = append(out, &row)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memPayments) get(paymentID string) domain.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[paymentID]
}

func (m *memPayments) put(p *domain.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[p.PaymentID] = *p
}

type memRefunds struct {
	mu   sync.Mutex
	rows map[string]domain.Refund
}

func newMemRefunds() *memRefunds {
	return &memRefunds{rows: map[string]domain.Refund{}}
}

func (m *memRefunds) Create(_ context.Context, r *domain.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.RefundID] = *r
	return nil
}

func (m *memRefunds) Update(_ context.Context, r *domain.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[r.RefundID]; !exists {
		return fmt.Errorf("update of unknown refund %s", r.RefundID)
	}
	m.rows[r.RefundID] = *r
	return nil
}

func (m *memRefunds) FindByRefundID(_ context.Context, refundID string) (*domain.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[refundID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memRefunds) ListByPaymentID(_ context.Context, paymentID string) ([]*domain.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Refund
	for id := range m.rows {
		row := m.rows[id]
		if row.PaymentID == paymentID {
			out = append(out, &row)
		}
	}
	return out, nil
}

func (m *memRefunds) SumActive(_ context.Context, paymentID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, row := range m.rows {
		if row.PaymentID == paymentID && (row.Status == domain.RefundPending || row.Status == domain.RefundCompleted) {
			sum += row.AmountMinor
		}
	}
	return sum, nil
}

func (m *memRefunds) completed(paymentID string) (count int, sum int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.PaymentID == paymentID && row.Status == domain.RefundCompleted {
			count++
			sum += row.AmountMinor
		}
	}
	return count, sum
}

type memOutbox struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*domain.OutboxEvent
}

func newMemOutbox() *memOutbox {
	return &memOutbox{rows: map[int64]*domain.OutboxEvent{}}
}

func (m *memOutbox) Enqueue(_ context.Context, evt domain.Event) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.rows[m.nextID] = &domain.OutboxEvent{
		ID:        m.nextID,
		Event:     evt,
		CreatedAt: time.Now().UTC(),
	}
	return m.nextID, nil
}

func (m *memOutbox) Due(_ context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OutboxEvent
	for id := int64(1); id <= m.nextID; id++ {
		row, ok := m.rows[id]
		if !ok || row.PublishedAt != nil || row.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, *row)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memOutbox) MarkPublished(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("unknown outbox entry %d", id)
	}
	now := time.Now().UTC()
	row.PublishedAt = &now
	return nil
}

func (m *memOutbox) Reschedule(_ context.Context, id int64, nextAt time.Time, cause string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("unknown outbox entry %d", id)
	}
	row.Attempts++
	row.NextAttemptAt = nextAt
	row.LastError = &cause
	return nil
}

func (m *memOutbox) PendingCount(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.PublishedAt == nil {
			n++
		}
	}
	return n, nil
}

func (m *memOutbox) events() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Event, 0, len(m.rows))
	for id := int64(1); id <= m.nextID; id++ {
		if row, ok := m.rows[id]; ok {
			out = append(out, row.Event)
		}
	}
	return out
}

type memCompensations struct {
	mu    sync.Mutex
	tasks []*domain.CompensationTask
	err   error
}

func (m *memCompensations) Enqueue(_ context.Context, task *domain.CompensationTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	task.ID = int64(len(m.tasks) + 1)
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *memCompensations) Due(_ context.Context, now time.Time, limit int) ([]*domain.CompensationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.CompensationTask
	for _, t := range m.tasks {
		if t.Status == domain.CompensationPending && !t.NextAttemptAt.After(now) {
			out = append(out, t)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memCompensations) Update(_ context.Context, task *domain.CompensationTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tasks {
		if t.ID == task.ID {
			m.tasks[i] = task
			return nil
		}
	}
	return fmt.Errorf("unknown compensation task %d", task.ID)
}

func (m *memCompensations) all() []*domain.CompensationTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.CompensationTask(nil), m.tasks...)
}

type memDeadLetters struct {
	mu      sync.Mutex
	entries []*domain.DeadLetter
}

func (m *memDeadLetters) Add(_ context.Context, entry *domain.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *memAudit) Append(_ context.Context, entry domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memAudit) ListByPaymentID(_ context.Context, paymentID string) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range m.entries {
		if e.PaymentID == paymentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memAudit) actions() []domain.AuditAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

// memLocker and memRecords back a real idempotency.Store in tests.
type memLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]struct{}{}}
}

func (l *memLocker) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[key]; taken {
		return false, nil
	}
	l.held[key] = struct{}{}
	return true, nil
}

func (l *memLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

type memRecords struct {
	mu   sync.Mutex
	rows map[string]idempotency.Record
}

func newMemRecords() *memRecords {
	return &memRecords{rows: map[string]idempotency.Record{}}
}

func (m *memRecords) key(merchantID, key string) string {
	return merchantID + "|" + key
}

func (m *memRecords) Get(_ context.Context, merchantID, key string) (*idempotency.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[m.key(merchantID, key)]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memRecords) Save(_ context.Context, record *idempotency.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[m.key(record.MerchantID, record.Key)] = *record
	return nil
}

func (m *memRecords) PruneExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for k, row := range m.rows {
		if row.ExpiresAt.Before(now) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

// Collaborator stubs in the function-field style: zero-value stubs answer
// with a sensible default, tests override the field they care about.

type stubTokenizer struct {
	tokenizeFn   func(ctx context.Context, card domain.Card) (application.TokenizedCard, error)
	detokenizeFn func(ctx context.Context, token string) (domain.Card, error)
}

func (s *stubTokenizer) Tokenize(ctx context.Context, card domain.Card) (application.TokenizedCard, error) {
	if s.tokenizeFn != nil {
		return s.tokenizeFn(ctx, card)
	}
	return application.TokenizedCard{
		Token:      "tok_" + card.LastFour(),
		LastFour:   card.LastFour(),
		Brand:      card.Brand(),
		KeyVersion: 1,
	}, nil
}

func (s *stubTokenizer) Detokenize(ctx context.Context, token string) (domain.Card, error) {
	if s.detokenizeFn != nil {
		return s.detokenizeFn(ctx, token)
	}
	return domain.Card{}, fmt.Errorf("detokenize not stubbed")
}

type stubFraud struct {
	evaluateFn func(ctx context.Context, in application.FraudInput) (application.FraudResult, error)
}

func (s *stubFraud) Evaluate(ctx context.Context, in application.FraudInput) (application.FraudResult, error) {
	if s.evaluateFn != nil {
		return s.evaluateFn(ctx, in)
	}
	return application.FraudResult{Score: 0.05, Decision: application.FraudClean}, nil
}

type stubThreeDS struct {
	initiateFn func(ctx context.Context, req application.ThreeDSRequest) (application.ThreeDSResult, error)
}

func (s *stubThreeDS) Initiate(ctx context.Context, req application.ThreeDSRequest) (application.ThreeDSResult, error) {
	if s.initiateFn != nil {
		return s.initiateFn(ctx, req)
	}
	return application.ThreeDSResult{
		Status: application.ThreeDSAuthenticated,
		CAVV:   "cavv-ok",
		ECI:    "05",
		XID:    "xid-1",
	}, nil
}

func (s *stubThreeDS) Complete(ctx context.Context, xid, response string) (application.ThreeDSResult, error) {
	return application.ThreeDSResult{Status: application.ThreeDSAuthenticated, XID: xid}, nil
}

type stubRouter struct {
	mu    sync.Mutex
	calls []string

	authorizeFn func(ctx context.Context, req psp.AuthRequest) (psp.AuthResult, error)
	captureFn   func(ctx context.Context, provider string, req psp.CaptureRequest) (psp.CaptureResult, error)
	voidFn      func(ctx context.Context, provider string, req psp.VoidRequest) (psp.VoidResult, error)
	refundFn    func(ctx context.Context, provider string, req psp.RefundRequest) (psp.RefundResult, error)
}

func (s *stubRouter) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op)
}

func (s *stubRouter) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.HasPrefix(c, op) {
			n++
		}
	}
	return n
}

func (s *stubRouter) Authorize(ctx context.Context, req psp.AuthRequest) (psp.AuthResult, error) {
	s.record("authorize")
	if s.authorizeFn != nil {
		return s.authorizeFn(ctx, req)
	}
	return psp.AuthResult{Provider: "alpha", Approved: true, AuthRef: "auth-1"}, nil
}

func (s *stubRouter) Capture(ctx context.Context, provider string, req psp.CaptureRequest) (psp.CaptureResult, error) {
	s.record("capture")
	if s.captureFn != nil {
		return s.captureFn(ctx, provider, req)
	}
	return psp.CaptureResult{Provider: provider, CaptureRef: "cap-1"}, nil
}

func (s *stubRouter) Void(ctx context.Context, provider string, req psp.VoidRequest) (psp.VoidResult, error) {
	s.record("void")
	if s.voidFn != nil {
		return s.voidFn(ctx, provider, req)
	}
	return psp.VoidResult{Provider: provider, VoidRef: "void-1"}, nil
}

func (s *stubRouter) Refund(ctx context.Context, provider string, req psp.RefundRequest) (psp.RefundResult, error) {
	s.record("refund")
	if s.refundFn != nil {
		return s.refundFn(ctx, provider, req)
	}
	return psp.RefundResult{Provider: provider, RefundRef: "rfnd-1"}, nil
}

type stubBus struct {
	mu        sync.Mutex
	published []domain.Event
	err       error
}

func (s *stubBus) Publish(_ context.Context, evt domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, evt)
	return nil
}

func (s *stubBus) events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.published...)
}
