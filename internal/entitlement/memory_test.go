package entitlement

import (
	"context"
	"sync"
	"testing"
)

func TestGetReturnsDefaultWhenMissing(t *testing.T) {
	store := NewInMemory()

	rec, err := store.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Tier != TierFree || rec.Status != StatusActive {
		t.Fatalf("expected free/active default, got %s/%s", rec.Tier, rec.Status)
	}
	if rec.LastEventSequence != 0 {
		t.Fatalf("expected sequence 0, got %d", rec.LastEventSequence)
	}
}

func TestApplyEventUpgradesTier(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	applied, err := store.ApplyEvent(ctx, "user-1", Update{
		Tier: TierPro, Status: StatusActive, ExternalID: "sub-9", Sequence: 5,
	})
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	if !applied {
		t.Fatal("expected event to apply")
	}

	rec, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Tier != TierPro || rec.Status != StatusActive {
		t.Fatalf("unexpected state %s/%s", rec.Tier, rec.Status)
	}
	if rec.ExternalSubscriptionID != "sub-9" {
		t.Fatalf("unexpected external id %q", rec.ExternalSubscriptionID)
	}
	if rec.LastEventSequence != 5 {
		t.Fatalf("unexpected sequence %d", rec.LastEventSequence)
	}
	if rec.UpdatedAt.IsZero() {
		t.Fatal("expected updated_at to be set")
	}
}

func TestApplyEventDuplicateIsNoOp(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	upd := Update{Tier: TierPro, Status: StatusActive, ExternalID: "sub-9", Sequence: 5}

	if applied, _ := store.ApplyEvent(ctx, "user-1", upd); !applied {
		t.Fatal("first delivery should apply")
	}
	first, _ := store.Get(ctx, "user-1")

	applied, err := store.ApplyEvent(ctx, "user-1", upd)
	if err != nil {
		t.Fatalf("duplicate ApplyEvent: %v", err)
	}
	if applied {
		t.Fatal("duplicate delivery must be a no-op")
	}
	second, _ := store.Get(ctx, "user-1")
	if first != second {
		t.Fatalf("duplicate delivery changed state: %+v != %+v", first, second)
	}
}

func TestApplyEventOutOfOrderKeepsNewest(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	if applied, _ := store.ApplyEvent(ctx, "user-1", Update{
		Tier: TierPro, Status: StatusActive, Sequence: 7,
	}); !applied {
		t.Fatal("sequence 7 should apply")
	}

	applied, err := store.ApplyEvent(ctx, "user-1", Update{
		Tier: TierFree, Status: StatusCanceled, Sequence: 4,
	})
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	if applied {
		t.Fatal("sequence 4 after 7 must be rejected as stale")
	}

	rec, _ := store.Get(ctx, "user-1")
	if rec.Tier != TierPro || rec.Status != StatusActive || rec.LastEventSequence != 7 {
		t.Fatalf("state regressed: %+v", rec)
	}
}

func TestApplyEventKeepsTierOnPaymentFailure(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	_, _ = store.ApplyEvent(ctx, "user-1", Update{Tier: TierPro, Status: StatusActive, Sequence: 1})

	applied, err := store.ApplyEvent(ctx, "user-1", Update{Status: StatusPastDue, Sequence: 2})
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	if !applied {
		t.Fatal("expected payment failure to apply")
	}

	rec, _ := store.Get(ctx, "user-1")
	if rec.Tier != TierPro {
		t.Fatalf("tier must be unchanged on payment failure, got %s", rec.Tier)
	}
	if rec.Status != StatusPastDue {
		t.Fatalf("expected past_due, got %s", rec.Status)
	}
}

func TestCreateDefaultIsIdempotent(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	if err := store.CreateDefault(ctx, "user-1"); err != nil {
		t.Fatalf("CreateDefault: %v", err)
	}
	_, _ = store.ApplyEvent(ctx, "user-1", Update{Tier: TierPro, Status: StatusActive, Sequence: 3})

	// A second CreateDefault must not reset reconciled state.
	if err := store.CreateDefault(ctx, "user-1"); err != nil {
		t.Fatalf("CreateDefault: %v", err)
	}
	rec, _ := store.Get(ctx, "user-1")
	if rec.Tier != TierPro || rec.LastEventSequence != 3 {
		t.Fatalf("CreateDefault reset state: %+v", rec)
	}
}

func TestApplyEventValidatesInput(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	if _, err := store.ApplyEvent(ctx, "", Update{Status: StatusActive, Sequence: 1}); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, err := store.ApplyEvent(ctx, "u", Update{Tier: "platinum", Status: StatusActive, Sequence: 1}); err == nil {
		t.Fatal("expected error for unknown tier")
	}
	if _, err := store.ApplyEvent(ctx, "u", Update{Tier: TierPro, Status: "paused", Sequence: 1}); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestApplyEventConcurrentSameUser(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	appliedCount := make(chan bool, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := store.ApplyEvent(ctx, "user-1", Update{
				Tier: TierPro, Status: StatusActive, Sequence: 5,
			})
			if err != nil {
				t.Errorf("ApplyEvent: %v", err)
			}
			appliedCount <- applied
		}()
	}
	wg.Wait()
	close(appliedCount)

	applies := 0
	for a := range appliedCount {
		if a {
			applies++
		}
	}
	if applies != 1 {
		t.Fatalf("expected exactly one apply across concurrent duplicates, got %d", applies)
	}
	rec, _ := store.Get(ctx, "user-1")
	if rec.LastEventSequence != 5 {
		t.Fatalf("unexpected sequence %d", rec.LastEventSequence)
	}
}

func TestTierAtLeast(t *testing.T) {
	if !TierPro.AtLeast(TierFree) {
		t.Fatal("pro should satisfy free")
	}
	if !TierPro.AtLeast(TierPro) {
		t.Fatal("pro should satisfy pro")
	}
	if TierFree.AtLeast(TierPro) {
		t.Fatal("free must not satisfy pro")
	}
}
