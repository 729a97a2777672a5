package escrow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gigvault/escrow/internal/testutil"
)

func pgPayment(id string, createdAt time.Time) *Payment {
	return &Payment{
		ID:             id,
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
		PaymentMethod:  "card",
		TransactionID:  "ch_1",
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func TestPostgresStore_CreateGetRoundtrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	p := pgPayment("pay_rt1", now)
	disputed, err := p.OpenDispute(Dispute{
		Reason:      "work_not_delivered",
		Description: "no submission",
		Evidence:    []string{"msg_1", "file_2"},
		Priority:    PriorityHigh,
		OpenedByID:  "client_1",
	}, now)
	if err != nil {
		t.Fatalf("OpenDispute failed: %v", err)
	}

	if err := store.Create(ctx, disputed); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "pay_rt1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusDisputed {
		t.Errorf("Expected status disputed, got %s", got.Status)
	}
	if !got.Amount.Equal(dec("100.00")) || !got.NetAmount.Equal(dec("90.00")) {
		t.Errorf("Amounts did not round-trip: amount=%s net=%s", got.Amount, got.NetAmount)
	}
	if got.Dispute == nil || len(got.Dispute.Evidence) != 2 || got.Dispute.Priority != PriorityHigh {
		t.Errorf("Dispute did not round-trip: %+v", got.Dispute)
	}

	if _, err := store.Get(ctx, "pay_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_ConditionalUpdateGuards(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	p := pgPayment("pay_cu1", now)
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	released, err := p.markReleased("tr_1", now)
	if err != nil {
		t.Fatalf("markReleased failed: %v", err)
	}
	if err := store.UpdateFromStatus(ctx, released, StatusHeld); err != nil {
		t.Fatalf("UpdateFromStatus failed: %v", err)
	}

	// The same guarded update loses now that the row moved on
	if err := store.UpdateFromStatus(ctx, released, StatusHeld); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}

	// Missing rows are distinguished from lost races
	ghost := pgPayment("pay_ghost", now)
	if err := store.UpdateFromStatus(ctx, ghost, StatusHeld); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_ResolveDisputeOnce(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	p := pgPayment("pay_rd1", now)
	disputed, _ := p.OpenDispute(Dispute{Reason: "r", OpenedByID: "client_1"}, now)
	if err := store.Create(ctx, disputed); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	resolved, err := disputed.Resolve("admin_1", Decision{Resolution: ResolutionRefundFull}, now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := store.ResolveDispute(ctx, resolved); err != nil {
		t.Fatalf("ResolveDispute failed: %v", err)
	}

	// A second resolver applying the same snapshot loses the race
	if err := store.ResolveDispute(ctx, resolved); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("Expected ErrAlreadyResolved, got %v", err)
	}

	got, err := store.Get(ctx, "pay_rd1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusRefunded || got.Dispute.ResolvedAt == nil {
		t.Errorf("Resolution did not persist: status=%s dispute=%+v", got.Status, got.Dispute)
	}
}

func TestPostgresStore_ListByUserPagination(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i := 0; i < 5; i++ {
		p := pgPayment(fmt.Sprintf("pay_pg%d", i), base.Add(time.Duration(i)*time.Second))
		if err := store.Create(ctx, p); err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}

	page1, err := store.ListByUser(ctx, HistoryQuery{UserID: "client_1", Limit: 3})
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(page1) != 3 {
		t.Fatalf("Expected 3 payments, got %d", len(page1))
	}
	// Newest first
	if page1[0].ID != "pay_pg4" {
		t.Errorf("Expected pay_pg4 first, got %s", page1[0].ID)
	}

	last := page1[len(page1)-1]
	page2, err := store.ListByUser(ctx, HistoryQuery{
		UserID:              "client_1",
		Limit:               3,
		AfterCreatedAtNanos: last.CreatedAt.UnixNano(),
		AfterID:             last.ID,
	})
	if err != nil {
		t.Fatalf("ListByUser page 2 failed: %v", err)
	}
	if len(page2) != 2 {
		t.Fatalf("Expected 2 payments on page 2, got %d", len(page2))
	}
	if page2[0].ID == last.ID {
		t.Error("Page 2 repeated the cursor row")
	}

	// Direction filters
	sent, _ := store.ListByUser(ctx, HistoryQuery{UserID: "client_1", Direction: DirectionSent})
	if len(sent) != 5 {
		t.Errorf("Expected 5 sent payments, got %d", len(sent))
	}
	received, _ := store.ListByUser(ctx, HistoryQuery{UserID: "client_1", Direction: DirectionReceived})
	if len(received) != 0 {
		t.Errorf("Expected 0 received payments for the payer, got %d", len(received))
	}
}

func TestPostgresStore_SummaryAndDisputeQueue(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	held := pgPayment("pay_s1", now)
	if err := store.Create(ctx, held); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	released := pgPayment("pay_s2", now.Add(time.Second))
	rel, _ := released.markReleased("tr_1", now)
	if err := store.Create(ctx, rel); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	disputedSrc := pgPayment("pay_s3", now.Add(2*time.Second))
	disputed, _ := disputedSrc.OpenDispute(Dispute{Reason: "r", Priority: PriorityLow, OpenedByID: "client_1"}, now)
	if err := store.Create(ctx, disputed); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	s, err := store.SummaryForUser(ctx, "client_1")
	if err != nil {
		t.Fatalf("SummaryForUser failed: %v", err)
	}
	if !s.TotalSent.Equal(dec("300.00")) {
		t.Errorf("Expected total sent 300.00, got %s", s.TotalSent)
	}
	if !s.HeldAmount.Equal(dec("200.00")) {
		t.Errorf("Expected held amount 200.00 (held + disputed), got %s", s.HeldAmount)
	}

	s, err = store.SummaryForUser(ctx, "freelancer_1")
	if err != nil {
		t.Fatalf("SummaryForUser failed: %v", err)
	}
	if !s.TotalReceived.Equal(dec("90.00")) {
		t.Errorf("Expected total received 90.00, got %s", s.TotalReceived)
	}

	open := false
	queue, err := store.ListDisputed(ctx, DisputeQuery{Resolved: &open})
	if err != nil {
		t.Fatalf("ListDisputed failed: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != "pay_s3" {
		t.Errorf("Expected the one open dispute, got %d entries", len(queue))
	}

	lowOnly, _ := store.ListDisputed(ctx, DisputeQuery{Priority: PriorityLow})
	if len(lowOnly) != 1 {
		t.Errorf("Expected 1 low-priority dispute, got %d", len(lowOnly))
	}
}
