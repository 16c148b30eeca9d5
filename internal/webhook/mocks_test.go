package webhook_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianpay/gateway/internal/domain"
)

type memWebhooks struct {
	mu         sync.Mutex
	rows       map[uuid.UUID]domain.WebhookDelivery
	enqueueErr error
}

func newMemWebhooks() *memWebhooks {
	return &memWebhooks{rows: map[uuid.UUID]domain.WebhookDelivery{}}
}

// Enqueue mirrors the ON CONFLICT DO NOTHING semantics of the real table:
// a second delivery for the same (event, merchant) pair is silently dropped.
func (m *memWebhooks) Enqueue(_ context.Context, d *domain.WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	for _, row := range m.rows {
		if row.EventID == d.EventID && row.MerchantID == d.MerchantID {
			return nil
		}
	}
	m.rows[d.ID] = *d
	return nil
}

func (m *memWebhooks) Due(_ context.Context, now time.Time, limit int) ([]*domain.WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.WebhookDelivery
	for id := range m.rows {
		row := m.rows[id]
		if row.Status != domain.DeliveryPending || row.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, &row)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memWebhooks) Update(_ context.Context, d *domain.WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[d.ID]; !exists {
		return fmt.Errorf("update of unknown delivery %s", d.ID)
	}
	m.rows[d.ID] = *d
	return nil
}

func (m *memWebhooks) byID(id uuid.UUID) domain.WebhookDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

func (m *memWebhooks) all() []domain.WebhookDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.WebhookDelivery, 0, len(m.rows))
	for id := range m.rows {
		out = append(out, m.rows[id])
	}
	return out
}

type memMerchants struct {
	mu      sync.Mutex
	rows    map[string]domain.Merchant
	findErr error
}

func newMemMerchants() *memMerchants {
	return &memMerchants{rows: map[string]domain.Merchant{}}
}

func (m *memMerchants) FindByID(_ context.Context, merchantID string) (*domain.Merchant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	row, ok := m.rows[merchantID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memMerchants) FindByAPIKeyHash(_ context.Context, keyHash string) (*domain.Merchant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for id := range m.rows {
		if m.rows[id].APIKeyHash == keyHash {
			row := m.rows[id]
			return &row, nil
		}
	}
	return nil, nil
}

func (m *memMerchants) put(merchant domain.Merchant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[merchant.MerchantID] = merchant
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
