package engine

import (
	"math"
	"testing"

	"github.com/alanyoungcy/gridbot/internal/domain"
)

// evalOneBuy runs an evaluation expected to produce exactly one buy intent.
func evalOneBuy(t *testing.T, e *Engine, price float64) domain.OrderIntent {
	t.Helper()
	intents := e.Evaluate(price)
	if len(intents) != 1 || intents[0].Action != domain.IntentBuy {
		t.Fatalf("expected one buy intent, got %+v", intents)
	}
	return intents[0]
}

func TestConfirmBuyConservation(t *testing.T) {
	e := testEngine(testConfig())
	intent := evalOneBuy(t, e, 97.50) // tiers 1,2,3 at 10 each

	cashBefore := e.Snapshot().Account.Cash
	res := e.Confirm(intent, "ord-1", intent.Quantity, 97.40, true, "")
	if !res.Applied || res.Mismatch {
		t.Fatalf("confirm result = %+v", res)
	}

	snap := e.Snapshot()
	var posQty int64
	for _, p := range snap.Positions {
		posQty += p.Quantity
	}
	if posQty != intent.Quantity {
		t.Fatalf("position quantity = %d, want %d", posQty, intent.Quantity)
	}
	wantCash := cashBefore - float64(intent.Quantity)*97.40
	if math.Abs(snap.Account.Cash-wantCash) > 1e-9 {
		t.Fatalf("cash = %f, want %f", snap.Account.Cash, wantCash)
	}
	for _, id := range intent.TierIDs {
		tier, _ := e.Book().Tier(id)
		if tier.State != domain.TierFilled {
			t.Fatalf("tier %d state = %s, want filled", id, tier.State)
		}
	}
}

func TestConfirmBuyPartialFillDistribution(t *testing.T) {
	cfg := testConfig()
	cfg.CapitalPerTier = 300 // floor(300/97.50) = 3 per tier
	e := testEngine(cfg)
	intent := evalOneBuy(t, e, 97.50)
	if len(intent.TierIDs) != 3 || intent.Quantity != 9 {
		t.Fatalf("unexpected intent %+v", intent)
	}

	// 7 of 9 filled: first (lowest) tier takes base 2 plus remainder 1.
	res := e.Confirm(intent, "ord-1", 7, 97.40, true, "")
	if !res.Applied || res.Quantity != 7 {
		t.Fatalf("confirm result = %+v", res)
	}

	wantShares := map[int]int64{intent.TierIDs[0]: 3, intent.TierIDs[1]: 2, intent.TierIDs[2]: 2}
	var sum int64
	for id, want := range wantShares {
		tier, _ := e.Book().Tier(id)
		if tier.FilledQty != want {
			t.Fatalf("tier %d filled = %d, want %d", id, tier.FilledQty, want)
		}
		sum += tier.FilledQty
	}
	if sum != 7 {
		t.Fatalf("distributed sum = %d, want 7", sum)
	}

	// The fully-served first tier lands on filled, short tiers on partial.
	first, _ := e.Book().Tier(intent.TierIDs[0])
	if first.State != domain.TierFilled {
		t.Fatalf("first tier state = %s, want filled", first.State)
	}
	for _, id := range intent.TierIDs[1:] {
		tier, _ := e.Book().Tier(id)
		if tier.State != domain.TierPartialFilled {
			t.Fatalf("tier %d state = %s, want partial_filled", id, tier.State)
		}
	}
}

func TestConfirmBuyFailureMarksError(t *testing.T) {
	e := testEngine(testConfig())
	intent := evalOneBuy(t, e, 97.50)

	cashBefore := e.Snapshot().Account.Cash
	res := e.Confirm(intent, "", 0, 0, false, "order rejected by broker")
	if res.Applied {
		t.Fatalf("failure confirm applied ledger effects: %+v", res)
	}

	snap := e.Snapshot()
	if snap.Account.Cash != cashBefore {
		t.Fatalf("cash mutated on failure: %f", snap.Account.Cash)
	}
	if len(snap.Positions) != 0 {
		t.Fatalf("positions created on failure: %+v", snap.Positions)
	}
	for _, id := range intent.TierIDs {
		tier, _ := e.Book().Tier(id)
		if tier.State != domain.TierError {
			t.Fatalf("tier %d state = %s, want error", id, tier.State)
		}
		if tier.ErrorMsg != "order rejected by broker" {
			t.Fatalf("tier %d error = %q", id, tier.ErrorMsg)
		}
	}

	// Explicit reset recovers the tiers.
	for _, id := range intent.TierIDs {
		if !e.ResetTier(id) {
			t.Fatalf("reset tier %d failed", id)
		}
	}
}

func TestConfirmSellConservation(t *testing.T) {
	e := testEngine(testConfig())
	e.ForceFill(2, 10, 99.5)
	e.ForceFill(3, 10, 99.0)

	intents := e.Evaluate(103)
	if len(intents) != 1 || intents[0].Action != domain.IntentSell {
		t.Fatalf("expected one sell intent, got %+v", intents)
	}
	sell := intents[0]

	cashBefore := e.Snapshot().Account.Cash
	res := e.Confirm(sell, "ord-s", 20, 103, true, "")
	if !res.Applied || res.Mismatch {
		t.Fatalf("confirm result = %+v", res)
	}
	if res.Quantity != 20 {
		t.Fatalf("removed quantity = %d, want 20", res.Quantity)
	}

	wantProceeds := 20.0 * 103
	wantProfit := wantProceeds - (10*99.5 + 10*99.0)
	if math.Abs(res.Proceeds-wantProceeds) > 1e-9 {
		t.Fatalf("proceeds = %f, want %f", res.Proceeds, wantProceeds)
	}
	if math.Abs(res.Profit-wantProfit) > 1e-9 {
		t.Fatalf("profit = %f, want %f", res.Profit, wantProfit)
	}

	snap := e.Snapshot()
	if math.Abs(snap.Account.Cash-(cashBefore+wantProceeds)) > 1e-9 {
		t.Fatalf("cash = %f, want %f", snap.Account.Cash, cashBefore+wantProceeds)
	}
	if len(snap.Positions) != 0 {
		t.Fatalf("positions remain after full exit: %+v", snap.Positions)
	}
	for _, id := range sell.TierIDs {
		tier, _ := e.Book().Tier(id)
		if tier.State != domain.TierEmpty {
			t.Fatalf("tier %d state = %s, want empty", id, tier.State)
		}
	}
}

func TestConfirmSellPartialLeavesRemainder(t *testing.T) {
	e := testEngine(testConfig())
	e.ForceFill(2, 3, 99.5)
	e.ForceFill(3, 3, 99.0)
	e.ForceFill(4, 3, 98.5)

	intents := e.Evaluate(103)
	if len(intents) != 1 {
		t.Fatalf("expected one sell intent, got %+v", intents)
	}
	sell := intents[0] // tiers [4 3 2], 9 total

	res := e.Confirm(sell, "ord-s", 7, 103, true, "")
	if !res.Applied || res.Mismatch {
		t.Fatalf("confirm result = %+v", res)
	}
	if res.Quantity != 7 {
		t.Fatalf("removed quantity = %d, want 7", res.Quantity)
	}

	// Highest tiers exit fully; the last processed tier keeps the unmet
	// quantity and returns to filled.
	for _, id := range []int{4, 3} {
		tier, _ := e.Book().Tier(id)
		if tier.State != domain.TierEmpty {
			t.Fatalf("tier %d state = %s, want empty", id, tier.State)
		}
	}
	tier, _ := e.Book().Tier(2)
	if tier.State != domain.TierFilled {
		t.Fatalf("tier 2 state = %s, want filled", tier.State)
	}
	if tier.FilledQty != 2 {
		t.Fatalf("tier 2 filled qty = %d, want 2 to match the remaining position", tier.FilledQty)
	}
	snap := e.Snapshot()
	if len(snap.Positions) != 1 || snap.Positions[0].TierID != 2 || snap.Positions[0].Quantity != 2 {
		t.Fatalf("remaining positions = %+v, want tier 2 holding 2", snap.Positions)
	}
	// Invested amount shrinks proportionally.
	wantInvested := 3 * 99.5 * (2.0 / 3.0)
	if math.Abs(snap.Positions[0].InvestedAmount-wantInvested) > 1e-9 {
		t.Fatalf("invested = %f, want %f", snap.Positions[0].InvestedAmount, wantInvested)
	}
}

func TestConfirmSellFailureRestoresFilled(t *testing.T) {
	e := testEngine(testConfig())
	e.ForceFill(3, 10, 99.0)

	intents := e.Evaluate(103)
	sell := intents[0]
	e.Acknowledge(sell, "ord-s")

	tier, _ := e.Book().Tier(3)
	if tier.State != domain.TierSelling {
		t.Fatalf("tier state after ack = %s, want selling", tier.State)
	}

	e.Confirm(sell, "ord-s", 0, 0, false, "fill timeout - manual verification required")

	tier, _ = e.Book().Tier(3)
	if tier.State != domain.TierFilled {
		t.Fatalf("tier state = %s, want filled after sell failure", tier.State)
	}
	snap := e.Snapshot()
	if len(snap.Positions) != 1 || snap.Positions[0].Quantity != 10 {
		t.Fatalf("position mutated on failed sell: %+v", snap.Positions)
	}
}

func TestAcknowledgeSplitsOrderedQuantity(t *testing.T) {
	e := testEngine(testConfig())
	intent := evalOneBuy(t, e, 97.50) // 3 tiers, 30 total

	e.Acknowledge(intent, "ord-7")
	for i, id := range intent.TierIDs {
		tier, _ := e.Book().Tier(id)
		if tier.State != domain.TierOrdering {
			t.Fatalf("tier %d state = %s, want ordering", id, tier.State)
		}
		if tier.OrderID != "ord-7" {
			t.Fatalf("tier %d order id = %q", id, tier.OrderID)
		}
		if tier.OrderedQty != 10 {
			t.Fatalf("tier %d ordered = %d, want 10 (share %d)", id, tier.OrderedQty, i)
		}
	}
}

func TestConfirmWithoutAcknowledgeStillApplies(t *testing.T) {
	// Direct-confirm compatibility: locked tiers synthesize their ordering
	// step inside Confirm.
	e := testEngine(testConfig())
	intent := evalOneBuy(t, e, 99.50)

	res := e.Confirm(intent, "ord-d", intent.Quantity, 99.40, true, "")
	if !res.Applied || res.Mismatch {
		t.Fatalf("confirm result = %+v", res)
	}
	for _, id := range intent.TierIDs {
		tier, _ := e.Book().Tier(id)
		if tier.State != domain.TierFilled || tier.OrderID != "ord-d" {
			t.Fatalf("tier %d = %+v", id, tier)
		}
	}
}

func TestForceFillSuspendsOnWorstTier(t *testing.T) {
	cfg := testConfig()
	cfg.TotalTiers = 2
	e := testEngine(cfg)

	if !e.ForceFill(2, 5, 99.5) {
		t.Fatal("force fill failed")
	}
	if !e.Suspended() {
		t.Fatal("worst-tier fill did not suspend trading")
	}
	snap := e.Snapshot()
	if len(snap.Positions) != 1 || snap.Positions[0].Quantity != 5 {
		t.Fatalf("positions = %+v", snap.Positions)
	}
}

func TestForceFillRejectsOccupiedTier(t *testing.T) {
	e := testEngine(testConfig())
	if !e.ForceFill(2, 5, 99.5) {
		t.Fatal("first force fill failed")
	}
	if e.ForceFill(2, 5, 99.5) {
		t.Fatal("second force fill on occupied tier should fail")
	}
}

func TestSplitQuantity(t *testing.T) {
	tests := []struct {
		total int64
		n     int
		want  []int64
	}{
		{9, 3, []int64{3, 3, 3}},
		{7, 3, []int64{3, 2, 2}},
		{2, 3, []int64{2, 0, 0}},
		{10, 1, []int64{10}},
	}
	for _, tc := range tests {
		got := splitQuantity(tc.total, tc.n)
		if len(got) != len(tc.want) {
			t.Fatalf("splitQuantity(%d, %d) = %v", tc.total, tc.n, got)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("splitQuantity(%d, %d) = %v, want %v", tc.total, tc.n, got, tc.want)
			}
		}
	}
}

func TestConfirmSellOverfillFlagsMismatch(t *testing.T) {
	e := testEngine(testConfig())
	e.ForceFill(3, 5, 99.0)

	intents := e.Evaluate(103)
	if len(intents) != 1 {
		t.Fatalf("expected one sell intent, got %+v", intents)
	}
	sell := intents[0]

	var events []Event
	e.OnEvent(func(ev Event) { events = append(events, ev) })
	cashBefore := e.Snapshot().Account.Cash

	// The gateway reports 8 filled while only 5 were ever held.
	res := e.Confirm(sell, "ord-s", 8, 103, true, "")
	if !res.Applied || !res.Mismatch {
		t.Fatalf("confirm result = %+v, want applied with mismatch", res)
	}
	if res.Quantity != 5 {
		t.Fatalf("removed quantity = %d, want the 5 actually held", res.Quantity)
	}
	if math.Abs(res.Proceeds-5*103.0) > 1e-9 {
		t.Fatalf("proceeds = %f, want %f", res.Proceeds, 5*103.0)
	}

	// The held quantity exits normally; the excess is flagged, never applied
	// and never rolled back.
	snap := e.Snapshot()
	if len(snap.Positions) != 0 {
		t.Fatalf("positions remain after exit: %+v", snap.Positions)
	}
	if math.Abs(snap.Account.Cash-(cashBefore+5*103.0)) > 1e-9 {
		t.Fatalf("cash = %f, want %f", snap.Account.Cash, cashBefore+5*103.0)
	}
	tier, _ := e.Book().Tier(3)
	if tier.State != domain.TierEmpty {
		t.Fatalf("tier 3 state = %s, want empty", tier.State)
	}

	var mismatch *Event
	for i := range events {
		if events[i].Type == EventReconcileMismatch {
			mismatch = &events[i]
		}
	}
	if mismatch == nil {
		t.Fatal("no reconcile mismatch event emitted")
	}
	if mismatch.Quantity != 3 || mismatch.Message == "" {
		t.Fatalf("mismatch event = %+v, want excess quantity 3 with a message", mismatch)
	}
}
