package engine

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/alanyoungcy/gridbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBook(total int) *TierBook {
	ladder := Ladder{BuyIntervalRate: 0.005, SellTargetRate: 0.03, TotalTiers: total}
	return NewTierBook(total, ladder, 100, testLogger())
}

func TestTryLockForBuyExactlyOnce(t *testing.T) {
	b := testBook(3)

	if !b.TryLockForBuy(1) {
		t.Fatal("first lock on empty tier should succeed")
	}
	if b.TryLockForBuy(1) {
		t.Fatal("second lock on same tier should fail")
	}
	tier, _ := b.Tier(1)
	if tier.State != domain.TierLocked {
		t.Fatalf("tier state = %s, want locked", tier.State)
	}
}

func TestTryLockForBuyConcurrent(t *testing.T) {
	b := testBook(1)

	const racers = 32
	var wg sync.WaitGroup
	results := make([]bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = b.TryLockForBuy(1)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("got %d lock winners, want exactly 1", wins)
	}
}

func TestUnlockRestoresEmpty(t *testing.T) {
	b := testBook(2)

	b.TryLockForBuy(2)
	b.Unlock(2, domain.TierEmpty)

	tier, _ := b.Tier(2)
	if tier.State != domain.TierEmpty {
		t.Fatalf("state = %s, want empty", tier.State)
	}
	if !b.TryLockForBuy(2) {
		t.Fatal("unlocked tier should be lockable again")
	}
}

func TestIllegalTransitionIsNoOp(t *testing.T) {
	b := testBook(2)

	// Empty tier cannot be sold, filled, or marked ordering.
	if b.MarkSold(1) {
		t.Error("MarkSold on empty tier should be rejected")
	}
	if b.MarkOrdering(1, "x", 1) {
		t.Error("MarkOrdering on empty tier should be rejected")
	}
	if b.MarkSelling(1, "x") {
		t.Error("MarkSelling on empty tier should be rejected")
	}
	tier, _ := b.Tier(1)
	if tier.State != domain.TierEmpty {
		t.Fatalf("state mutated by rejected transition: %s", tier.State)
	}
}

func TestBuyLifecycle(t *testing.T) {
	b := testBook(1)

	if !b.TryLockForBuy(1) {
		t.Fatal("lock failed")
	}
	if !b.MarkOrdering(1, "ord-1", 10) {
		t.Fatal("mark ordering failed")
	}
	if !b.MarkFilled(1, 10, 99.5) {
		t.Fatal("mark filled failed")
	}

	tier, _ := b.Tier(1)
	if tier.State != domain.TierFilled {
		t.Fatalf("state = %s, want filled", tier.State)
	}
	if tier.OrderID != "ord-1" || tier.OrderedQty != 10 || tier.FilledQty != 10 {
		t.Fatalf("tier record not updated: %+v", tier)
	}
}

func TestMarkFilledShortFill(t *testing.T) {
	b := testBook(1)
	b.TryLockForBuy(1)
	b.MarkOrdering(1, "ord-1", 10)

	if !b.MarkFilled(1, 7, 99.5) {
		t.Fatal("short fill should be accepted")
	}
	tier, _ := b.Tier(1)
	if tier.State != domain.TierPartialFilled {
		t.Fatalf("state = %s, want partial_filled", tier.State)
	}
}

func TestMarkFilledOverfillIsFatal(t *testing.T) {
	b := testBook(1)
	b.TryLockForBuy(1)
	b.MarkOrdering(1, "ord-1", 10)

	if b.MarkFilled(1, 11, 99.5) {
		t.Fatal("overfill should be rejected")
	}
	tier, _ := b.Tier(1)
	if tier.State != domain.TierError {
		t.Fatalf("state = %s, want error", tier.State)
	}
	if tier.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", tier.RetryCount)
	}
}

func TestErrorRecovery(t *testing.T) {
	b := testBook(1)
	b.TryLockForBuy(1)
	b.MarkOrdering(1, "ord-1", 10)
	b.MarkError(1, "gateway rejected")

	tier, _ := b.Tier(1)
	if tier.State != domain.TierError || tier.ErrorMsg != "gateway rejected" {
		t.Fatalf("unexpected tier after error: %+v", tier)
	}

	// Retry path: error -> ordering.
	if !b.MarkOrdering(1, "ord-2", 10) {
		t.Fatal("retry to ordering should be allowed from error")
	}

	// Reset path: error -> empty.
	b.MarkError(1, "rejected again")
	if !b.ResetTier(1) {
		t.Fatal("reset from error should succeed")
	}
	tier, _ = b.Tier(1)
	if tier.State != domain.TierEmpty || tier.OrderID != "" || tier.ErrorMsg != "" {
		t.Fatalf("reset did not clear tier: %+v", tier)
	}
}

func TestLockedErrorUnwindsThroughEmpty(t *testing.T) {
	b := testBook(1)
	b.TryLockForBuy(1)

	if !b.MarkError(1, "abandoned") {
		t.Fatal("error from locked should succeed")
	}
	tier, _ := b.Tier(1)
	if tier.State != domain.TierError {
		t.Fatalf("state = %s, want error", tier.State)
	}
}

func TestTiersByStateReturnsCopies(t *testing.T) {
	b := testBook(3)
	b.TryLockForBuy(2)

	locked := b.TiersByState(domain.TierLocked)
	if len(locked) != 1 || locked[0].ID != 2 {
		t.Fatalf("TiersByState(locked) = %+v", locked)
	}

	// Mutating the snapshot must not touch live state.
	locked[0].State = domain.TierSold
	tier, _ := b.Tier(2)
	if tier.State != domain.TierLocked {
		t.Fatal("snapshot mutation leaked into live state")
	}
}

func TestRepricePreservesState(t *testing.T) {
	b := testBook(3)
	ladder := Ladder{BuyIntervalRate: 0.005, SellTargetRate: 0.03, TotalTiers: 3}

	b.TryLockForBuy(2)
	b.MarkOrdering(2, "ord-9", 5)

	b.Reprice(ladder, 110)

	tier, _ := b.Tier(2)
	if tier.State != domain.TierOrdering || tier.OrderID != "ord-9" || tier.OrderedQty != 5 {
		t.Fatalf("reprice reset in-flight tier: %+v", tier)
	}
	want := 110 * (1 - 0.005)
	if diff := tier.BuyPrice - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("buy price = %f, want %f", tier.BuyPrice, want)
	}
}
