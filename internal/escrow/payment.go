// Package escrow implements the payment engine for job settlements.
//
// Flow:
//  1. Client funds a job → charge attempted → funds held in escrow
//  2. Client (or an admin) releases → net amount transferred to the freelancer
//  3. Client requests a refund → payment enters dispute for admin review
//  4. Admin resolves the dispute → full/partial refund, full/partial
//     release, or no action
//
// Every payment is an append-only ledger entry: it is never deleted, and each
// state transition is persisted with a conditional update so that two
// concurrent writers can never both pass the same guard.
package escrow

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("payment not found")
	ErrUnauthorized    = errors.New("not authorized for this payment operation")
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrInvalidStatus   = errors.New("invalid payment status for this operation")
	ErrSameParty       = errors.New("payer and payee cannot be the same user")
	ErrInvalidJobState = errors.New("job is not in a payable state")
	ErrChargeDeclined  = errors.New("payment charge declined")
	ErrTransferFailed  = errors.New("payout transfer failed")
	ErrAlreadyResolved = errors.New("dispute already resolved")
	ErrConflict        = errors.New("payment was modified concurrently")
)

// Status represents the state of a payment.
type Status string

const (
	StatusPending           Status = "pending"            // Created, charge not yet settled
	StatusHeld              Status = "held"               // Charge succeeded, funds in escrow
	StatusReleased          Status = "released"           // Net amount paid out to the payee
	StatusRefunded          Status = "refunded"           // Full amount returned to the payer
	StatusPartiallyRefunded Status = "partially_refunded" // Dispute closed with a partial refund
	StatusPartiallyReleased Status = "partially_released" // Dispute closed with a partial payout
	StatusDisputed          Status = "disputed"           // Under admin review
	StatusFailed            Status = "failed"             // Charge declined, no funds moved
)

// Resolution is the closed set of admin dispute decisions.
type Resolution string

const (
	ResolutionRefundFull     Resolution = "refund_full"
	ResolutionRefundPartial  Resolution = "refund_partial"
	ResolutionReleaseFull    Resolution = "release_full"
	ResolutionReleasePartial Resolution = "release_partial"
	ResolutionNoAction       Resolution = "no_action"
)

// ParseResolution validates a wire-format resolution string.
func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(s); r {
	case ResolutionRefundFull, ResolutionRefundPartial,
		ResolutionReleaseFull, ResolutionReleasePartial, ResolutionNoAction:
		return r, nil
	}
	return "", fmt.Errorf("unknown resolution %q", s)
}

// Priority is the triage level of a dispute.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Dispute holds the review sub-record of a disputed payment.
// ResolvedAt doubles as the concurrency guard: once set, no further
// resolution may be applied to the payment.
type Dispute struct {
	Reason            string     `json:"reason"`
	Description       string     `json:"description,omitempty"`
	Evidence          []string   `json:"evidence,omitempty"`
	Priority          Priority   `json:"priority"`
	OpenedByID        string     `json:"openedById"`
	OpenedAt          time.Time  `json:"openedAt"`
	ResolvedAt        *time.Time `json:"resolvedAt,omitempty"`
	Resolution        Resolution `json:"resolution,omitempty"`
	ResolutionNotes   string     `json:"resolutionNotes,omitempty"`
	ResolvedByAdminID string     `json:"resolvedByAdminId,omitempty"`
}

// Payment is one escrow ledger entry per job settlement.
type Payment struct {
	ID      string `json:"id"`
	JobID   string `json:"jobId"`
	PayerID string `json:"payerId"`
	PayeeID string `json:"payeeId"`

	Amount         decimal.Decimal `json:"amount"`
	FeePercent     decimal.Decimal `json:"feePercent"`
	PlatformFee    decimal.Decimal `json:"platformFee"`
	NetAmount      decimal.Decimal `json:"netAmount"`
	RefundAmount   decimal.Decimal `json:"refundAmount"`
	ReleasedAmount decimal.Decimal `json:"releasedAmount"`

	Status        Status `json:"status"`
	PaymentMethod string `json:"paymentMethod,omitempty"`

	// Provider references, set only on successful gateway calls.
	TransactionID string `json:"transactionId,omitempty"`
	TransferID    string `json:"transferId,omitempty"`

	Dispute *Dispute `json:"dispute,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ReleasedAt *time.Time `json:"releasedAt,omitempty"`
	RefundedAt *time.Time `json:"refundedAt,omitempty"`
}

// CanBeReleased reports whether a release may be attempted.
func (p *Payment) CanBeReleased() bool {
	return p.Status == StatusHeld
}

// CanBeRefunded reports whether funds may still be returned to the payer:
// the payment is held or disputed, and the pot has not been fully paid out
// to the payee already.
func (p *Payment) CanBeRefunded() bool {
	if p.Status != StatusHeld && p.Status != StatusDisputed {
		return false
	}
	return p.Amount.GreaterThan(p.ReleasedAmount)
}

// CanBeDisputed reports whether a dispute may be opened. A payment supports
// exactly one dispute over its lifetime, including post-release disputes.
func (p *Payment) CanBeDisputed() bool {
	if p.Dispute != nil {
		return false
	}
	return p.Status == StatusHeld || p.Status == StatusReleased
}

// IsTerminal reports whether no further transitions are possible.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case StatusReleased, StatusRefunded, StatusPartiallyRefunded,
		StatusPartiallyReleased, StatusFailed:
		return p.Dispute == nil || p.Dispute.ResolvedAt != nil
	}
	return false
}

// DisputeOpen reports whether an unresolved dispute exists.
func (p *Payment) DisputeOpen() bool {
	return p.Dispute != nil && p.Dispute.ResolvedAt == nil
}

// Clone returns a deep copy. Transitions operate on copies so a failed
// persist never leaves a mutated snapshot in the caller's hands.
func (p *Payment) Clone() *Payment {
	cp := *p
	if p.Dispute != nil {
		d := *p.Dispute
		if p.Dispute.Evidence != nil {
			d.Evidence = make([]string, len(p.Dispute.Evidence))
			copy(d.Evidence, p.Dispute.Evidence)
		}
		cp.Dispute = &d
	}
	return &cp
}
