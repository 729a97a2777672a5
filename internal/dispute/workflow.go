// Package dispute implements admin arbitration of disputed payments.
//
// A dispute is resolved exactly once. The storage layer enforces this with a
// conditional update on dispute_resolved_at, so two admins racing on the
// same dispute produce one success and one ErrAlreadyResolved, never a
// silent double-settlement.
package dispute

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gigvault/escrow/internal/audit"
	"github.com/gigvault/escrow/internal/escrow"
	"github.com/gigvault/escrow/internal/gateway"
	"github.com/gigvault/escrow/internal/metrics"
	"github.com/gigvault/escrow/internal/traces"
)

// Workflow applies admin dispute decisions to payments.
type Workflow struct {
	store   escrow.Store
	gateway gateway.Client
	audit   audit.Sink
	logger  *slog.Logger
	locks   sync.Map // per-payment ID locks, same discipline as the escrow service
}

// NewWorkflow creates a dispute workflow.
func NewWorkflow(store escrow.Store, gw gateway.Client, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{store: store, gateway: gw, logger: logger}
}

// WithAudit adds an audit sink for resolution events.
func (w *Workflow) WithAudit(sink audit.Sink) *Workflow {
	w.audit = sink
	return w
}

func (w *Workflow) paymentLock(id string) *sync.Mutex {
	v, _ := w.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Filter selects entries for the admin dispute queue.
type Filter struct {
	Status   string // "open", "resolved", or "" for both
	Priority escrow.Priority
	Limit    int
}

// List returns the dispute queue, newest first.
func (w *Workflow) List(ctx context.Context, f Filter) ([]*escrow.Payment, error) {
	q := escrow.DisputeQuery{Priority: f.Priority, Limit: f.Limit}
	switch f.Status {
	case "open":
		resolved := false
		q.Resolved = &resolved
	case "resolved":
		resolved := true
		q.Resolved = &resolved
	}
	return w.store.ListDisputed(ctx, q)
}

// Resolve applies an admin decision to a disputed payment. The funds
// movement (if any) happens first; the conditional store update then closes
// the dispute, and a lost race surfaces as ErrAlreadyResolved.
func (w *Workflow) Resolve(ctx context.Context, paymentID, adminID string, dec escrow.Decision) (*escrow.Payment, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.Resolve",
		traces.PaymentID(paymentID), traces.Resolution(string(dec.Resolution)))
	defer span.End()

	mu := w.paymentLock(paymentID)
	mu.Lock()
	defer mu.Unlock()

	p, err := w.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	next, err := p.Resolve(adminID, dec, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := w.moveFunds(ctx, p, next, dec); err != nil {
		return nil, err
	}

	if err := w.store.ResolveDispute(ctx, next); err != nil {
		if err == escrow.ErrAlreadyResolved {
			w.logger.Warn("lost dispute-resolution race",
				"payment_id", paymentID, "admin_id", adminID)
		}
		return nil, err
	}

	w.recordAudit(ctx, p, next, adminID)
	metrics.ObserveDisputeResolution(string(dec.Resolution))
	metrics.ObservePaymentTransition(string(next.Status))

	return next, nil
}

// moveFunds performs the gateway transfer a resolution calls for: refunds
// pay the payer back, releases pay the payee. Only the amounts the
// resolution itself added move; funds released before the dispute stay with
// the payee. no_action moves nothing.
func (w *Workflow) moveFunds(ctx context.Context, prev, next *escrow.Payment, dec escrow.Decision) error {
	var req gateway.TransferRequest
	switch dec.Resolution {
	case escrow.ResolutionRefundFull, escrow.ResolutionRefundPartial:
		req = gateway.TransferRequest{
			PayeeRef:  next.PayerID,
			Amount:    next.RefundAmount.Sub(prev.RefundAmount),
			Reference: next.ID,
		}
	case escrow.ResolutionReleaseFull, escrow.ResolutionReleasePartial:
		req = gateway.TransferRequest{
			PayeeRef:  next.PayeeID,
			Amount:    next.ReleasedAmount.Sub(prev.ReleasedAmount),
			Reference: next.ID,
		}
	case escrow.ResolutionNoAction:
		return nil
	}

	res, err := w.gateway.Transfer(ctx, req)
	metrics.ObserveGatewayCall("transfer", err == nil && res != nil && res.OK)
	if err != nil || !res.OK {
		reason := "gateway_error"
		if err == nil {
			reason = res.Reason
		}
		w.logger.Warn("resolution transfer failed, dispute stays open",
			"payment_id", next.ID, "resolution", dec.Resolution,
			"amount", req.Amount, "reason", reason, "error", err)
		return fmt.Errorf("%w: %s", escrow.ErrTransferFailed, reason)
	}
	if dec.Resolution == escrow.ResolutionReleaseFull || dec.Resolution == escrow.ResolutionReleasePartial {
		next.TransferID = res.ProviderRef
	}
	return nil
}

func (w *Workflow) recordAudit(ctx context.Context, prev, next *escrow.Payment, adminID string) {
	if w.audit == nil {
		return
	}
	e := audit.Event{
		PaymentID:  next.ID,
		Action:     "dispute_resolved",
		FromStatus: string(prev.Status),
		ToStatus:   string(next.Status),
		ActorID:    adminID,
		ActorRole:  "admin",
		Amount:     next.Amount.String(),
		Details: map[string]string{
			"resolution":      string(next.Dispute.Resolution),
			"refund_amount":   next.RefundAmount.String(),
			"released_amount": next.ReleasedAmount.String(),
		},
	}
	if err := w.audit.Record(ctx, e); err != nil {
		w.logger.Warn("failed to record audit event",
			"payment_id", next.ID, "action", "dispute_resolved", "error", err)
	}
}
