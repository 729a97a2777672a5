package gateway

import (
	"context"
	"sync"

	"github.com/gigvault/escrow/internal/idgen"
)

// Simulated is an in-process gateway for development mode: every call
// succeeds with a generated provider reference unless a failure toggle is
// set. Safe for concurrent use.
type Simulated struct {
	mu             sync.Mutex
	declineCharges bool
	failTransfers  bool
	chargeCount    int
	transferCount  int
	lastTransfer   TransferRequest
}

// NewSimulated creates a simulated gateway that approves everything.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// DeclineCharges makes subsequent charges decline.
func (s *Simulated) DeclineCharges(decline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.declineCharges = decline
}

// FailTransfers makes subsequent transfers fail.
func (s *Simulated) FailTransfers(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTransfers = fail
}

func (s *Simulated) Charge(ctx context.Context, req ChargeRequest) (*Result, error) {
	if !req.Amount.IsPositive() {
		return &Result{OK: false, Reason: "invalid_amount"}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chargeCount++
	if s.declineCharges {
		return &Result{OK: false, Reason: "card_declined"}, nil
	}
	return &Result{OK: true, ProviderRef: idgen.WithPrefix("ch_sim_")}, nil
}

func (s *Simulated) Transfer(ctx context.Context, req TransferRequest) (*Result, error) {
	if !req.Amount.IsPositive() {
		return &Result{OK: false, Reason: "invalid_amount"}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transferCount++
	s.lastTransfer = req
	if s.failTransfers {
		return &Result{OK: false, Reason: "account_unavailable"}, nil
	}
	return &Result{OK: true, ProviderRef: idgen.WithPrefix("tr_sim_")}, nil
}

// LastTransfer returns the most recent transfer request.
func (s *Simulated) LastTransfer() TransferRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTransfer
}

// Calls reports how many charges and transfers were attempted.
func (s *Simulated) Calls() (charges, transfers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chargeCount, s.transferCount
}

// Compile-time assertion that Simulated implements Client.
var _ Client = (*Simulated)(nil)
