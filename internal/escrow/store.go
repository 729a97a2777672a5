package escrow

import (
	"context"

	"github.com/shopspring/decimal"
)

// Direction filters a user's payment history.
type Direction string

const (
	DirectionAll      Direction = ""
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// HistoryQuery selects a page of a user's payments.
type HistoryQuery struct {
	UserID    string
	Direction Direction
	Limit     int
	// Cursor is the (createdAt, id) position after which to read,
	// nil for the first page.
	AfterCreatedAtNanos int64
	AfterID             string
}

// Summary aggregates a user's payment positions.
type Summary struct {
	TotalSent     decimal.Decimal `json:"totalSent"`
	TotalReceived decimal.Decimal `json:"totalReceived"`
	PendingAmount decimal.Decimal `json:"pendingAmount"`
	HeldAmount    decimal.Decimal `json:"heldAmount"`
}

// DisputeQuery selects entries for the admin dispute queue.
type DisputeQuery struct {
	// Resolved filters on dispute closure; nil returns both.
	Resolved *bool
	Priority Priority
	Limit    int
}

// Store persists payments. Every transition goes through a conditional
// update: the WHERE clause re-checks the guard the caller validated, and a
// zero-row result means another writer got there first.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)

	// UpdateFromStatus persists p only if the stored row is still in the
	// expected status. Returns ErrConflict when the row has moved on and
	// ErrNotFound when it does not exist.
	UpdateFromStatus(ctx context.Context, p *Payment, expect Status) error

	// ResolveDispute persists a resolved snapshot only if the stored row is
	// still disputed with an unresolved dispute. Returns ErrAlreadyResolved
	// when another resolver won the race.
	ResolveDispute(ctx context.Context, p *Payment) error

	ListByUser(ctx context.Context, q HistoryQuery) ([]*Payment, error)
	SummaryForUser(ctx context.Context, userID string) (*Summary, error)
	ListDisputed(ctx context.Context, q DisputeQuery) ([]*Payment, error)
}
