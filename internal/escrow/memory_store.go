package escrow

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory payment store for development and tests.
// Its conditional updates mirror the Postgres semantics exactly, including
// the zero-rows results that signal lost races.
type MemoryStore struct {
	payments map[string]*Payment
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory payment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payments: make(map[string]*Payment)}
}

func (m *MemoryStore) Create(ctx context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = p.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) UpdateFromStatus(ctx context.Context, p *Payment, expect Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.payments[p.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expect {
		return ErrConflict
	}
	m.payments[p.ID] = p.Clone()
	return nil
}

func (m *MemoryStore) ResolveDispute(ctx context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.payments[p.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != StatusDisputed || cur.Dispute == nil || cur.Dispute.ResolvedAt != nil {
		return ErrAlreadyResolved
	}
	m.payments[p.ID] = p.Clone()
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, q HistoryQuery) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Payment
	for _, p := range m.payments {
		switch q.Direction {
		case DirectionSent:
			if p.PayerID != q.UserID {
				continue
			}
		case DirectionReceived:
			if p.PayeeID != q.UserID {
				continue
			}
		default:
			if p.PayerID != q.UserID && p.PayeeID != q.UserID {
				continue
			}
		}
		result = append(result, p.Clone())
	}

	// Newest first, ID as tiebreaker to keep cursor pages stable.
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if q.AfterID != "" {
		for i, p := range result {
			if p.CreatedAt.UnixNano() == q.AfterCreatedAtNanos && p.ID == q.AfterID {
				result = result[i+1:]
				break
			}
		}
	}
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

func (m *MemoryStore) SummaryForUser(ctx context.Context, userID string) (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := &Summary{
		TotalSent:     decimal.Zero,
		TotalReceived: decimal.Zero,
		PendingAmount: decimal.Zero,
		HeldAmount:    decimal.Zero,
	}
	for _, p := range m.payments {
		if p.PayerID == userID {
			switch p.Status {
			case StatusPending:
				s.TotalSent = s.TotalSent.Add(p.Amount)
				s.PendingAmount = s.PendingAmount.Add(p.Amount)
			case StatusHeld, StatusDisputed:
				s.TotalSent = s.TotalSent.Add(p.Amount)
				s.HeldAmount = s.HeldAmount.Add(p.Amount)
			case StatusReleased, StatusPartiallyReleased, StatusRefunded, StatusPartiallyRefunded:
				s.TotalSent = s.TotalSent.Add(p.Amount)
			}
		}
		if p.PayeeID == userID {
			switch p.Status {
			case StatusReleased, StatusPartiallyReleased:
				s.TotalReceived = s.TotalReceived.Add(p.ReleasedAmount)
			}
		}
	}
	return s, nil
}

func (m *MemoryStore) ListDisputed(ctx context.Context, q DisputeQuery) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Payment
	for _, p := range m.payments {
		if p.Dispute == nil {
			continue
		}
		if q.Resolved != nil && (p.Dispute.ResolvedAt != nil) != *q.Resolved {
			continue
		}
		if q.Priority != "" && p.Dispute.Priority != q.Priority {
			continue
		}
		result = append(result, p.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Dispute.OpenedAt.After(result[j].Dispute.OpenedAt)
	})
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
