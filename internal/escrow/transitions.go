package escrow

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transitions are pure: each takes the current snapshot and returns a new
// one (or an error) without touching storage. The service layer persists the
// result with a conditional update keyed on the prior status, which is what
// serializes concurrent writers.

// markHeld transitions pending → held after a successful charge.
func (p *Payment) markHeld(transactionID string, now time.Time) (*Payment, error) {
	if p.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot hold from %s", ErrInvalidStatus, p.Status)
	}
	next := p.Clone()
	next.Status = StatusHeld
	next.TransactionID = transactionID
	next.UpdatedAt = now
	return next, nil
}

// markFailed transitions pending → failed after a declined charge.
func (p *Payment) markFailed(now time.Time) (*Payment, error) {
	if p.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot fail from %s", ErrInvalidStatus, p.Status)
	}
	next := p.Clone()
	next.Status = StatusFailed
	next.UpdatedAt = now
	return next, nil
}

// markReleased transitions held → released after a successful transfer.
func (p *Payment) markReleased(transferID string, now time.Time) (*Payment, error) {
	if !p.CanBeReleased() {
		return nil, fmt.Errorf("%w: cannot release from %s", ErrInvalidStatus, p.Status)
	}
	next := p.Clone()
	next.Status = StatusReleased
	next.TransferID = transferID
	next.ReleasedAmount = p.NetAmount
	next.ReleasedAt = &now
	next.UpdatedAt = now
	return next, nil
}

// OpenDispute transitions held|released → disputed.
func (p *Payment) OpenDispute(d Dispute, now time.Time) (*Payment, error) {
	if !p.CanBeDisputed() {
		if p.Dispute != nil {
			return nil, fmt.Errorf("%w: payment already has a dispute", ErrInvalidStatus)
		}
		return nil, fmt.Errorf("%w: cannot dispute from %s", ErrInvalidStatus, p.Status)
	}
	if d.Priority == "" {
		d.Priority = PriorityMedium
	}
	d.OpenedAt = now
	next := p.Clone()
	next.Status = StatusDisputed
	next.Dispute = &d
	next.UpdatedAt = now
	return next, nil
}

// Decision is an admin's dispute verdict.
type Decision struct {
	Resolution    Resolution
	Notes         string
	RefundAmount  decimal.Decimal // refund_partial only
	ReleaseAmount decimal.Decimal // release_partial only
}

// Resolve applies an admin decision to a disputed payment. Every branch,
// including no_action, stamps the dispute-closure fields; the resulting
// snapshot must be persisted with Store.ResolveDispute so that only one of
// two concurrent resolvers wins.
func (p *Payment) Resolve(adminID string, dec Decision, now time.Time) (*Payment, error) {
	// Checked before the status check: the winner of a resolution race may
	// have moved the payment to a terminal status, and the loser must see
	// ErrAlreadyResolved, not a status complaint.
	if p.Dispute != nil && p.Dispute.ResolvedAt != nil {
		return nil, ErrAlreadyResolved
	}
	if p.Status != StatusDisputed || p.Dispute == nil {
		return nil, fmt.Errorf("%w: cannot resolve from %s", ErrInvalidStatus, p.Status)
	}

	// Conservation: refunds and releases share one pot. Funds already paid
	// out before the dispute (post-release clawback reviews) shrink what a
	// resolution may still move.
	refundable := p.Amount.Sub(p.ReleasedAmount)
	releasable := p.NetAmount.Sub(p.ReleasedAmount)

	next := p.Clone()
	switch dec.Resolution {
	case ResolutionRefundFull:
		if !p.CanBeRefunded() {
			return nil, fmt.Errorf("%w: nothing left to refund", ErrInvalidAmount)
		}
		next.Status = StatusRefunded
		next.RefundAmount = refundable
		next.RefundedAt = &now
	case ResolutionRefundPartial:
		if !p.CanBeRefunded() || !dec.RefundAmount.IsPositive() || dec.RefundAmount.GreaterThan(refundable) {
			return nil, fmt.Errorf("%w: refund amount must be in (0, %s]", ErrInvalidAmount, refundable)
		}
		next.Status = StatusPartiallyRefunded
		next.RefundAmount = dec.RefundAmount
		next.RefundedAt = &now
	case ResolutionReleaseFull:
		if !releasable.IsPositive() {
			return nil, fmt.Errorf("%w: nothing left to release", ErrInvalidAmount)
		}
		next.Status = StatusReleased
		next.ReleasedAmount = p.NetAmount
		next.ReleasedAt = &now
	case ResolutionReleasePartial:
		if !dec.ReleaseAmount.IsPositive() || dec.ReleaseAmount.GreaterThan(releasable) {
			return nil, fmt.Errorf("%w: release amount must be in (0, %s]", ErrInvalidAmount, releasable)
		}
		next.Status = StatusPartiallyReleased
		next.ReleasedAmount = p.ReleasedAmount.Add(dec.ReleaseAmount)
		next.ReleasedAt = &now
	case ResolutionNoAction:
		// Status unchanged; the dispute is still closed below.
	default:
		return nil, fmt.Errorf("unknown resolution %q", dec.Resolution)
	}

	next.Dispute.ResolvedAt = &now
	next.Dispute.Resolution = dec.Resolution
	next.Dispute.ResolutionNotes = dec.Notes
	next.Dispute.ResolvedByAdminID = adminID
	next.UpdatedAt = now
	return next, nil
}
