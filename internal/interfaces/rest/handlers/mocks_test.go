package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/interfaces/rest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) rest.ErrorResponse {
	t.Helper()
	var resp rest.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

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
}

func newMemPayments() *memPayments {
	return &memPayments{rows: map[string]domain.Payment{}}
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

// List mirrors the repository's contract: filters narrow, order is newest
// first, total counts matches before paging.
func (m *memPayments) List(_ context.Context, filter application.TransactionFilter) ([]*domain.Payment, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*domain.Payment
	for id := range m.rows {
		row := m.rows[id]
		if row.MerchantID != filter.MerchantID {
			continue
		}
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		if filter.Currency != "" && row.Currency != filter.Currency {
			continue
		}
		if !filter.From.IsZero() && row.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && row.CreatedAt.After(filter.To) {
			continue
		}
		matched = append(matched, &row)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (m *memPayments) CapturedForSettlement(_ context.Context, _ time.Time, _ int) ([]*domain.Payment, error) {
	return nil, nil
}

func (m *memPayments) put(p *domain.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[p.PaymentID] = *p
}

type memRefunds struct {
	mu    sync.Mutex
	rows  map[string]domain.Refund
	order []string
}

func newMemRefunds() *memRefunds {
	return &memRefunds{rows: map[string]domain.Refund{}}
}

func (m *memRefunds) Create(_ context.Context, r *domain.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.RefundID] = *r
	m.order = append(m.order, r.RefundID)
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
	for _, id := range m.order {
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
	for _, id := range m.order {
		row := m.rows[id]
		if row.PaymentID == paymentID && row.Status != domain.RefundFailed {
			sum += row.AmountMinor
		}
	}
	return sum, nil
}

func (m *memRefunds) put(r *domain.Refund) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[r.RefundID]; !exists {
		m.order = append(m.order, r.RefundID)
	}
	m.rows[r.RefundID] = *r
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

// memBatches covers what the chargeback intake touches: the adjustment lines
// a lost dispute leaves behind. Batch lifecycle methods are never reached.
type memBatches struct {
	mu          sync.Mutex
	adjustments []*domain.SettlementAdjustment
	nextAdjID   int64
}

func (m *memBatches) CreateBatch(_ context.Context, _ *domain.SettlementBatch) error { return nil }
func (m *memBatches) UpdateBatch(_ context.Context, _ *domain.SettlementBatch) error { return nil }
func (m *memBatches) FindBatch(_ context.Context, _ string) (*domain.SettlementBatch, error) {
	return nil, nil
}
func (m *memBatches) ListBatchesByStatus(_ context.Context, _ domain.SettlementBatchStatus, _ int) ([]*domain.SettlementBatch, error) {
	return nil, nil
}
func (m *memBatches) AssignPayments(_ context.Context, _ string, _ []string) error { return nil }
func (m *memBatches) PaymentsInBatch(_ context.Context, _ string) ([]*domain.Payment, error) {
	return nil, nil
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

func (m *memBatches) MarkAdjustmentsApplied(_ context.Context, _ []int64, _ string) error {
	return nil
}

func (m *memBatches) all() []*domain.SettlementAdjustment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.SettlementAdjustment(nil), m.adjustments...)
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

type stubBus struct {
	mu        sync.Mutex
	published []domain.Event
}

func (s *stubBus) Publish(_ context.Context, evt domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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

// stubAcquirer satisfies the engine's constructor; the intake routes never
// talk to the acquirer.
type stubAcquirer struct{}

func (stubAcquirer) SubmitBatch(_ context.Context, sub application.BatchSubmission) (string, error) {
	return "acq-" + sub.BatchID, nil
}

func (stubAcquirer) FetchReport(_ context.Context, acquirerRef string) (*application.SettlementReport, error) {
	return &application.SettlementReport{AcquirerRef: acquirerRef, Ready: false}, nil
}
