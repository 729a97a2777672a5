package escrow

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func heldPayment() *Payment {
	now := time.Now().UTC()
	return &Payment{
		ID:             "pay_test",
		JobID:          "job_1",
		PayerID:        "client_1",
		PayeeID:        "freelancer_1",
		Amount:         dec("100.00"),
		FeePercent:     dec("10"),
		PlatformFee:    dec("10.00"),
		NetAmount:      dec("90.00"),
		RefundAmount:   decimal.Zero,
		ReleasedAmount: decimal.Zero,
		Status:         StatusHeld,
		TransactionID:  "ch_1",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestTransitions_PendingToHeld(t *testing.T) {
	p := heldPayment()
	p.Status = StatusPending
	p.TransactionID = ""

	next, err := p.markHeld("ch_new", time.Now().UTC())
	if err != nil {
		t.Fatalf("markHeld failed: %v", err)
	}
	if next.Status != StatusHeld {
		t.Errorf("Expected status held, got %s", next.Status)
	}
	if next.TransactionID != "ch_new" {
		t.Errorf("Expected transaction ID ch_new, got %s", next.TransactionID)
	}
	// Original snapshot is untouched
	if p.Status != StatusPending {
		t.Errorf("Original snapshot mutated to %s", p.Status)
	}
}

func TestTransitions_HoldFromHeldRejected(t *testing.T) {
	p := heldPayment()
	if _, err := p.markHeld("ch_2", time.Now().UTC()); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("Expected ErrInvalidStatus, got %v", err)
	}
}

func TestTransitions_Release(t *testing.T) {
	p := heldPayment()
	now := time.Now().UTC()

	next, err := p.markReleased("tr_1", now)
	if err != nil {
		t.Fatalf("markReleased failed: %v", err)
	}
	if next.Status != StatusReleased {
		t.Errorf("Expected status released, got %s", next.Status)
	}
	if !next.ReleasedAmount.Equal(p.NetAmount) {
		t.Errorf("Expected released amount %s, got %s", p.NetAmount, next.ReleasedAmount)
	}
	if next.ReleasedAt == nil {
		t.Error("Expected ReleasedAt to be set")
	}
	if !next.IsTerminal() {
		t.Error("Expected released payment to be terminal")
	}

	// Can't release twice
	if _, err := next.markReleased("tr_2", now); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("Expected ErrInvalidStatus on double release, got %v", err)
	}
}

func TestTransitions_OpenDispute(t *testing.T) {
	p := heldPayment()
	now := time.Now().UTC()

	next, err := p.OpenDispute(Dispute{
		Reason:     "work_not_delivered",
		OpenedByID: "client_1",
	}, now)
	if err != nil {
		t.Fatalf("OpenDispute failed: %v", err)
	}
	if next.Status != StatusDisputed {
		t.Errorf("Expected status disputed, got %s", next.Status)
	}
	if next.Dispute.Priority != PriorityMedium {
		t.Errorf("Expected default priority medium, got %s", next.Dispute.Priority)
	}
	if !next.DisputeOpen() {
		t.Error("Expected dispute to be open")
	}

	// A payment supports exactly one dispute
	if _, err := next.OpenDispute(Dispute{Reason: "again"}, now); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("Expected ErrInvalidStatus on second dispute, got %v", err)
	}
}

func TestTransitions_DisputeAfterRelease(t *testing.T) {
	p := heldPayment()
	now := time.Now().UTC()

	released, err := p.markReleased("tr_1", now)
	if err != nil {
		t.Fatalf("markReleased failed: %v", err)
	}
	if !released.CanBeDisputed() {
		t.Fatal("Expected a released payment without a prior dispute to be disputable")
	}

	disputed, err := released.OpenDispute(Dispute{Reason: "quality", OpenedByID: "client_1"}, now)
	if err != nil {
		t.Fatalf("OpenDispute after release failed: %v", err)
	}
	if disputed.Status != StatusDisputed {
		t.Errorf("Expected status disputed, got %s", disputed.Status)
	}
}

func TestResolve_FullRefund(t *testing.T) {
	p := heldPayment()
	now := time.Now().UTC()
	disputed, _ := p.OpenDispute(Dispute{Reason: "r", OpenedByID: "client_1"}, now)

	next, err := disputed.Resolve("admin_1", Decision{Resolution: ResolutionRefundFull}, now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if next.Status != StatusRefunded {
		t.Errorf("Expected status refunded, got %s", next.Status)
	}
	if !next.RefundAmount.Equal(p.Amount) {
		t.Errorf("Expected refund amount %s, got %s", p.Amount, next.RefundAmount)
	}
	if next.Dispute.ResolvedAt == nil || next.Dispute.ResolvedByAdminID != "admin_1" {
		t.Error("Expected dispute closure fields to be stamped")
	}
	if !next.IsTerminal() {
		t.Error("Expected resolved refund to be terminal")
	}
}

func TestResolve_PartialBounds(t *testing.T) {
	p := heldPayment()
	now := time.Now().UTC()
	disputed, _ := p.OpenDispute(Dispute{Reason: "r", OpenedByID: "client_1"}, now)

	tests := []struct {
		name string
		dec  Decision
	}{
		{"zero refund", Decision{Resolution: ResolutionRefundPartial, RefundAmount: decimal.Zero}},
		{"refund above amount", Decision{Resolution: ResolutionRefundPartial, RefundAmount: dec("100.01")}},
		{"zero release", Decision{Resolution: ResolutionReleasePartial, ReleaseAmount: decimal.Zero}},
		{"release above net", Decision{Resolution: ResolutionReleasePartial, ReleaseAmount: dec("90.01")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := disputed.Resolve("admin_1", tt.dec, now); !errors.Is(err, ErrInvalidAmount) {
				t.Errorf("Expected ErrInvalidAmount, got %v", err)
			}
		})
	}

	// Boundary values are accepted
	next, err := disputed.Resolve("admin_1",
		Decision{Resolution: ResolutionRefundPartial, RefundAmount: dec("100.00")}, now)
	if err != nil {
		t.Fatalf("Resolve at boundary failed: %v", err)
	}
	if next.Status != StatusPartiallyRefunded {
		t.Errorf("Expected status partially_refunded, got %s", next.Status)
	}
}

func TestResolve_NoActionClosesDispute(t *testing.T) {
	p := heldPayment()
	now := time.Now().UTC()
	disputed, _ := p.OpenDispute(Dispute{Reason: "r", OpenedByID: "client_1"}, now)

	next, err := disputed.Resolve("admin_1", Decision{Resolution: ResolutionNoAction, Notes: "no merit"}, now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if next.Status != StatusDisputed {
		t.Errorf("Expected status to stay disputed, got %s", next.Status)
	}
	if next.DisputeOpen() {
		t.Error("Expected dispute to be closed")
	}

	// A closed dispute can't be resolved again
	if _, err := next.Resolve("admin_2", Decision{Resolution: ResolutionRefundFull}, now); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("Expected ErrAlreadyResolved, got %v", err)
	}
}

func TestResolve_LostRaceAfterRefund(t *testing.T) {
	p := heldPayment()
	now := time.Now().UTC()
	disputed, _ := p.OpenDispute(Dispute{Reason: "r", OpenedByID: "client_1"}, now)

	won, err := disputed.Resolve("admin_1", Decision{Resolution: ResolutionRefundFull}, now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if won.Status != StatusRefunded {
		t.Fatalf("Expected status refunded, got %s", won.Status)
	}

	// The loser of a resolution race re-reads the refunded snapshot and must
	// see the dispute as already resolved, not a status error.
	if _, err := won.Resolve("admin_2", Decision{Resolution: ResolutionRefundFull}, now); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("Expected ErrAlreadyResolved, got %v", err)
	}
}

func TestResolve_PostReleaseClawbackConservation(t *testing.T) {
	p := heldPayment()
	now := time.Now().UTC()

	released, err := p.markReleased("tr_1", now)
	if err != nil {
		t.Fatalf("markReleased failed: %v", err)
	}
	disputed, err := released.OpenDispute(Dispute{Reason: "defective_work", OpenedByID: "client_1"}, now)
	if err != nil {
		t.Fatalf("OpenDispute failed: %v", err)
	}

	// 90.00 already went to the payee; only the 10.00 remainder may move back.
	if _, err := disputed.Resolve("admin_1",
		Decision{Resolution: ResolutionRefundPartial, RefundAmount: dec("10.01")}, now); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount above the remainder, got %v", err)
	}
	if _, err := disputed.Resolve("admin_1",
		Decision{Resolution: ResolutionReleaseFull}, now); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount with nothing left to release, got %v", err)
	}

	next, err := disputed.Resolve("admin_1", Decision{Resolution: ResolutionRefundFull}, now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !next.RefundAmount.Equal(dec("10.00")) {
		t.Errorf("Expected refund capped at 10.00, got %s", next.RefundAmount)
	}
	if !next.ReleasedAmount.Equal(dec("90.00")) {
		t.Errorf("Expected released amount 90.00 preserved, got %s", next.ReleasedAmount)
	}
	if next.RefundAmount.Add(next.ReleasedAmount).GreaterThan(next.Amount) {
		t.Errorf("Refund %s + released %s exceeds amount %s",
			next.RefundAmount, next.ReleasedAmount, next.Amount)
	}
}

func TestResolve_NothingLeftToRefund(t *testing.T) {
	// With a zero fee the full pot goes to the payee on release, so a
	// post-release dispute has no refundable remainder.
	p := heldPayment()
	p.FeePercent = decimal.Zero
	p.PlatformFee = decimal.Zero
	p.NetAmount = p.Amount
	now := time.Now().UTC()

	released, _ := p.markReleased("tr_1", now)
	disputed, _ := released.OpenDispute(Dispute{Reason: "r", OpenedByID: "client_1"}, now)

	if disputed.CanBeRefunded() {
		t.Error("Expected CanBeRefunded to be false with the pot fully paid out")
	}
	if _, err := disputed.Resolve("admin_1", Decision{Resolution: ResolutionRefundFull}, now); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}
}

func TestParseResolution(t *testing.T) {
	for _, valid := range []string{"refund_full", "refund_partial", "release_full", "release_partial", "no_action"} {
		if _, err := ParseResolution(valid); err != nil {
			t.Errorf("ParseResolution(%q) failed: %v", valid, err)
		}
	}
	if _, err := ParseResolution("split_the_difference"); err == nil {
		t.Error("Expected error for unknown resolution")
	}
}

func TestClone_DeepCopiesDispute(t *testing.T) {
	p := heldPayment()
	disputed, _ := p.OpenDispute(Dispute{
		Reason:   "r",
		Evidence: []string{"file_1"},
	}, time.Now().UTC())

	cp := disputed.Clone()
	cp.Dispute.Evidence[0] = "tampered"
	cp.Dispute.Reason = "changed"

	if disputed.Dispute.Evidence[0] != "file_1" {
		t.Error("Clone shares evidence slice with original")
	}
	if disputed.Dispute.Reason != "r" {
		t.Error("Clone shares dispute struct with original")
	}
}
