package settlement_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/domain"
)

type memTx struct {
	mu sync.Mutex
}

func (t *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}

type memPayments struct {
	mu   sync.Mutex
	rows map[string]domain.Payment

	// batchOf mirrors the batch_id column the settlement repository stamps.
	batchOf map[string]string
}

func newMemPayments() *memPayments {
	return &memPayments{rows: map[string]domain.Payment{}, batchOf: map[string]string{}}
}

func (m *memPayments) Create(_ context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[p.PaymentID] = *p
	return nil
}

func (m *memPayments) Update(_ context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *memPayments) List(_ context.Context, _ application.TransactionFilter) ([]*domain.Payment, int64, error) {
	return nil, 0, nil
}

func (m *memPayments) CapturedForSettlement(_ context.Context, cutoff time.Time, limit int) ([]*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Payment
	for id := range m.rows {
		row := m.rows[id]
		if row.Status != domain.StatusCaptured || row.CapturedAt == nil || !row.CapturedAt.Before(cutoff) {
			continue
		}
		if _, assigned := m.batchOf[id]; assigned {
			continue
		}
		out = append(out, &row)
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

type memBatches struct {
	mu          sync.Mutex
	batches     map[string]domain.SettlementBatch
	payments    *memPayments
	adjustments []*domain.SettlementAdjustment
	nextAdjID   int64
}

func newMemBatches(payments *memPayments) *memBatches {
	return &memBatches{batches: map[string]domain.SettlementBatch{}, payments: payments}
}

func (m *memBatches) CreateBatch(_ context.Context, b *domain.SettlementBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.batches[b.BatchID]; exists {
		return fmt.Errorf("duplicate batch %s", b.BatchID)
	}
	m.batches[b.BatchID] = *b
	return nil
}

func (m *memBatches) UpdateBatch(_ context.Context, b *domain.SettlementBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.batches[b.BatchID]; !exists {
		return fmt.Errorf("update of unknown batch %s", b.BatchID)
	}
	m.batches[b.BatchID] = *b
	return nil
}

func (m *memBatches) FindBatch(_ context.Context, batchID string) (*domain.SettlementBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.batches[batchID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memBatches) ListBatchesByStatus(_ context.Context, status domain.SettlementBatchStatus, limit int) ([]*domain.SettlementBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.SettlementBatch
	for id := range m.batches {
		row := m.batches[id]
		if row.Status == status {
			out = append(out, &row)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memBatches) AssignPayments(_ context.Context, batchID string, paymentIDs []string) error {
	m.payments.mu.Lock()
	defer m.payments.mu.Unlock()
	for _, id := range paymentIDs {
		if existing, taken := m.payments.batchOf[id]; taken {
			return fmt.Errorf("payment %s already in batch %s", id, existing)
		}
		m.payments.batchOf[id] = batchID
	}
	return nil
}

func (m *memBatches) PaymentsInBatch(_ context.Context, batchID string) ([]*domain.Payment, error) {
	m.payments.mu.Lock()
	defer m.payments.mu.Unlock()
	var out []*domain.Payment
	for id, b := range m.payments.batchOf {
		if b != batchID {
			continue
		}
		row := m.payments.rows[id]
		out = append(out, &row)
	}
	return out, nil
}

func (m *memBatches) AddAdjustment(_ context.Context, adj *domain.SettlementAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAdjID++
	adj.ID = m.nextAdjID
	m.adjustments = append(m.adjustments, adj)
	return nil
}

func (m *memBatches) PendingAdjustments(_ context.Context, merchantID, currency string) ([]*domain.SettlementAdjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.SettlementAdjustment
	for _, adj := range m.adjustments {
		if adj.MerchantID == merchantID && adj.Currency == currency && adj.AppliedAt == nil {
			out = append(out, adj)
		}
	}
	return out, nil
}

func (m *memBatches) MarkAdjustmentsApplied(_ context.Context, ids []int64, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, id := range ids {
		for _, adj := range m.adjustments {
			if adj.ID == id {
				adj.AppliedAt = &now
				adj.BatchID = &batchID
			}
		}
	}
	return nil
}

func (m *memBatches) batch(batchID string) domain.SettlementBatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches[batchID]
}

type memDisputes struct {
	mu   sync.Mutex
	rows map[string]domain.Dispute
}

func newMemDisputes() *memDisputes {
	return &memDisputes{rows: map[string]domain.Dispute{}}
}

func (m *memDisputes) Create(_ context.Context, d *domain.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[d.DisputeID] = *d
	return nil
}

func (m *memDisputes) Update(_ context.Context, d *domain.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[d.DisputeID]; !exists {
		return fmt.Errorf("update of unknown dispute %s", d.DisputeID)
	}
	m.rows[d.DisputeID] = *d
	return nil
}

func (m *memDisputes) FindByDisputeID(_ context.Context, disputeID string) (*domain.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[disputeID]
	if !ok {
		return nil, nil
	}
	return &row, nil
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
	m.rows[m.nextID] = &domain.OutboxEvent{ID: m.nextID, Event: evt, CreatedAt: time.Now().UTC()}
	return m.nextID, nil
}

func (m *memOutbox) Due(_ context.Context, _ time.Time, _ int) ([]domain.OutboxEvent, error) {
	return nil, nil
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

func (m *memOutbox) eventTypes() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.EventType, 0, len(m.rows))
	for id := int64(1); id <= m.nextID; id++ {
		if row, ok := m.rows[id]; ok {
			out = append(out, row.Event.EventType)
		}
	}
	return out
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

func (s *stubBus) eventTypes() []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventType, 0, len(s.published))
	for _, evt := range s.published {
		out = append(out, evt.EventType)
	}
	return out
}

type stubAcquirer struct {
	mu          sync.Mutex
	submissions []application.BatchSubmission
	submitErr   error
	reports     map[string]*application.SettlementReport
	fetchErr    error
}

func newStubAcquirer() *stubAcquirer {
	return &stubAcquirer{reports: map[string]*application.SettlementReport{}}
}

func (s *stubAcquirer) SubmitBatch(_ context.Context, sub application.BatchSubmission) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return "", s.submitErr
	}
	s.submissions = append(s.submissions, sub)
	return "acq-" + sub.BatchID, nil
}

func (s *stubAcquirer) FetchReport(_ context.Context, acquirerRef string) (*application.SettlementReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	report, ok := s.reports[acquirerRef]
	if !ok {
		return &application.SettlementReport{AcquirerRef: acquirerRef, Ready: false}, nil
	}
	return report, nil
}

func (s *stubAcquirer) setReport(acquirerRef string, report *application.SettlementReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report.AcquirerRef = acquirerRef
	s.reports[acquirerRef] = report
}
