package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gigvault/escrow/internal/audit"
	"github.com/gigvault/escrow/internal/fees"
	"github.com/gigvault/escrow/internal/gateway"
	"github.com/gigvault/escrow/internal/idgen"
	"github.com/gigvault/escrow/internal/jobs"
	"github.com/gigvault/escrow/internal/metrics"
	"github.com/gigvault/escrow/internal/traces"
)

// Service orchestrates payment creation, release, and refund requests.
type Service struct {
	store      Store
	gateway    gateway.Client
	jobs       jobs.Directory
	audit      audit.Sink
	feePercent decimal.Decimal
	logger     *slog.Logger
	locks      sync.Map // per-payment ID locks to serialize in-process transitions
}

// NewService creates a new payment service. feePercent is the platform fee
// schedule in effect; it is captured onto each payment at creation time.
func NewService(store Store, gw gateway.Client, dir jobs.Directory, feePercent decimal.Decimal, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		gateway:    gw,
		jobs:       dir,
		feePercent: feePercent,
		logger:     logger,
	}
}

// WithAudit adds an audit sink for transition events.
func (s *Service) WithAudit(sink audit.Sink) *Service {
	s.audit = sink
	return s
}

// paymentLock returns a mutex for the given payment ID. It serializes
// transitions within the process; the store's conditional updates remain the
// authoritative cross-process guard.
func (s *Service) paymentLock(id string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Store exposes the underlying store for components that share it.
func (s *Service) Store() Store {
	return s.store
}

// CreateRequest contains the parameters for creating an escrow payment.
type CreateRequest struct {
	JobID         string          `json:"jobId" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	PaymentMethod string          `json:"paymentMethod" binding:"required"`
}

// RefundRequest contains the parameters for a payer refund request.
type RefundRequest struct {
	Reason      string   `json:"reason" binding:"required"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
	Priority    string   `json:"priority"`
}

// Create validates the job and parties, persists a pending entry, attempts
// the charge, and commits held or failed depending on the outcome. The
// engine never retries a charge; a declined or timed-out charge is terminal.
func (s *Service) Create(ctx context.Context, req CreateRequest, requestedBy string) (*Payment, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Create", traces.JobID(req.JobID))
	defer span.End()

	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	job, err := s.jobs.Get(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != requestedBy {
		return nil, ErrUnauthorized
	}
	if job.ClientID == job.FreelancerID {
		return nil, ErrSameParty
	}
	if !job.Payable() {
		return nil, fmt.Errorf("%w: job is %s", ErrInvalidJobState, job.Status)
	}

	fee, net, err := fees.Calculate(req.Amount, s.feePercent)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &Payment{
		ID:             idgen.WithPrefix("pay_"),
		JobID:          job.ID,
		PayerID:        job.ClientID,
		PayeeID:        job.FreelancerID,
		Amount:         req.Amount,
		FeePercent:     s.feePercent,
		PlatformFee:    fee,
		NetAmount:      net,
		RefundAmount:   decimal.Zero,
		ReleasedAmount: decimal.Zero,
		Status:         StatusPending,
		PaymentMethod:  req.PaymentMethod,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create payment record: %w", err)
	}
	s.recordAudit(ctx, p, "created", "", requestedBy, "payer")

	res, err := s.gateway.Charge(ctx, gateway.ChargeRequest{
		PayerRef:  p.PayerID,
		Amount:    p.Amount,
		Method:    p.PaymentMethod,
		Reference: p.ID,
	})
	metrics.ObserveGatewayCall("charge", err == nil && res != nil && res.OK)

	if err != nil || !res.OK {
		reason := "gateway_error"
		if err != nil {
			s.logger.Error("charge attempt failed",
				"payment_id", p.ID, "payer_id", p.PayerID, "amount", p.Amount, "error", err)
		} else {
			reason = res.Reason
			s.logger.Warn("charge declined",
				"payment_id", p.ID, "payer_id", p.PayerID, "amount", p.Amount, "reason", reason)
		}

		failed, ferr := p.markFailed(time.Now().UTC())
		if ferr != nil {
			return nil, ferr
		}
		if perr := s.store.UpdateFromStatus(ctx, failed, StatusPending); perr != nil {
			s.logger.Error("CRITICAL: charge failed but payment could not be marked failed",
				"payment_id", p.ID, "error", perr)
			return nil, perr
		}
		s.recordAudit(ctx, failed, "charge_failed", StatusPending, requestedBy, "payer")
		metrics.ObservePaymentTransition(string(StatusFailed))
		return nil, fmt.Errorf("%w: %s", ErrChargeDeclined, reason)
	}

	held, err := p.markHeld(res.ProviderRef, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateFromStatus(ctx, held, StatusPending); err != nil {
		// Funds were charged but the hold could not be persisted; this needs
		// manual reconciliation against the provider reference.
		s.logger.Error("CRITICAL: charge succeeded but payment could not be marked held",
			"payment_id", p.ID, "provider_ref", res.ProviderRef, "error", err)
		return nil, err
	}
	s.recordAudit(ctx, held, "held", StatusPending, requestedBy, "payer")
	metrics.ObservePaymentTransition(string(StatusHeld))

	return held, nil
}

// Release transfers the net amount to the payee. Only the payer or an admin
// may release. A failed transfer leaves the payment held so the caller can
// retry explicitly.
func (s *Service) Release(ctx context.Context, id, requestedBy string, isAdmin bool) (*Payment, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Release", traces.PaymentID(id))
	defer span.End()

	mu := s.paymentLock(id)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && requestedBy != p.PayerID {
		return nil, ErrUnauthorized
	}
	if !p.CanBeReleased() {
		return nil, fmt.Errorf("%w: cannot release from %s", ErrInvalidStatus, p.Status)
	}

	res, err := s.gateway.Transfer(ctx, gateway.TransferRequest{
		PayeeRef:  p.PayeeID,
		Amount:    p.NetAmount,
		Reference: p.ID,
	})
	metrics.ObserveGatewayCall("transfer", err == nil && res != nil && res.OK)

	if err != nil || !res.OK {
		reason := "gateway_error"
		if err == nil {
			reason = res.Reason
		}
		s.logger.Warn("transfer failed, payment stays held",
			"payment_id", p.ID, "payee_id", p.PayeeID, "amount", p.NetAmount,
			"reason", reason, "error", err)
		s.recordAudit(ctx, p, "transfer_failed", StatusHeld, requestedBy, releaseRole(isAdmin))
		return nil, fmt.Errorf("%w: %s", ErrTransferFailed, reason)
	}

	released, err := p.markReleased(res.ProviderRef, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateFromStatus(ctx, released, StatusHeld); err != nil {
		// Funds already moved to the payee; never roll the ledger forward on
		// guesswork, surface for manual reconciliation instead.
		s.logger.Error("CRITICAL: transfer succeeded but payment could not be marked released",
			"payment_id", p.ID, "transfer_ref", res.ProviderRef, "error", err)
		return nil, err
	}
	s.recordAudit(ctx, released, "released", StatusHeld, requestedBy, releaseRole(isAdmin))
	metrics.ObservePaymentTransition(string(StatusReleased))

	return released, nil
}

// RequestRefund opens a dispute on behalf of the payer. Refunds are never
// auto-approved: the payment moves to disputed for admin arbitration.
func (s *Service) RequestRefund(ctx context.Context, id string, req RefundRequest, requestedBy string) (*Payment, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.RequestRefund", traces.PaymentID(id))
	defer span.End()

	mu := s.paymentLock(id)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if requestedBy != p.PayerID {
		return nil, ErrUnauthorized
	}

	disputed, err := p.OpenDispute(Dispute{
		Reason:      req.Reason,
		Description: req.Description,
		Evidence:    req.Evidence,
		Priority:    Priority(req.Priority),
		OpenedByID:  requestedBy,
	}, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateFromStatus(ctx, disputed, p.Status); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, disputed, "dispute_opened", p.Status, requestedBy, "payer")
	metrics.ObservePaymentTransition(string(StatusDisputed))

	return disputed, nil
}

// Get returns a payment by ID.
func (s *Service) Get(ctx context.Context, id string) (*Payment, error) {
	return s.store.Get(ctx, id)
}

// History returns a page of the user's payments.
func (s *Service) History(ctx context.Context, q HistoryQuery) ([]*Payment, error) {
	return s.store.ListByUser(ctx, q)
}

// Summary returns the user's aggregate payment positions.
func (s *Service) Summary(ctx context.Context, userID string) (*Summary, error) {
	return s.store.SummaryForUser(ctx, userID)
}

func (s *Service) recordAudit(ctx context.Context, p *Payment, action string, from Status, actorID, actorRole string) {
	if s.audit == nil {
		return
	}
	e := audit.Event{
		PaymentID:  p.ID,
		Action:     action,
		FromStatus: string(from),
		ToStatus:   string(p.Status),
		ActorID:    actorID,
		ActorRole:  actorRole,
		Amount:     p.Amount.String(),
	}
	if err := s.audit.Record(ctx, e); err != nil {
		s.logger.Warn("failed to record audit event",
			"payment_id", p.ID, "action", action, "error", err)
	}
}

func releaseRole(isAdmin bool) string {
	if isAdmin {
		return "admin"
	}
	return "payer"
}
