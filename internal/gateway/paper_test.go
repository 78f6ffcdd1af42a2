package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/gridbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPaperFullFill(t *testing.T) {
	g := NewPaper(testLogger())
	ctx := context.Background()

	id, err := g.Submit(ctx, domain.IntentBuy, 100.0, 30)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id == "" {
		t.Fatal("empty order id")
	}

	rep, err := g.PollFill(ctx, id)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if rep.Status != domain.FillStatusFilled {
		t.Fatalf("status = %s, want FILLED", rep.Status)
	}
	if rep.FilledQty != 30 || rep.FilledPrice != 100.0 {
		t.Errorf("fill = %d @ %f, want 30 @ 100", rep.FilledQty, rep.FilledPrice)
	}
	if !rep.Terminal() {
		t.Error("full fill should be terminal")
	}
}

func TestPaperDelayedFill(t *testing.T) {
	g := NewPaper(testLogger())
	g.FillAfterPolls = 2
	ctx := context.Background()

	id, _ := g.Submit(ctx, domain.IntentSell, 103.0, 10)

	for i := 0; i < 2; i++ {
		rep, err := g.PollFill(ctx, id)
		if err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
		if rep.Status != domain.FillStatusUnknown {
			t.Fatalf("poll %d status = %s, want UNKNOWN", i, rep.Status)
		}
	}
	rep, _ := g.PollFill(ctx, id)
	if rep.Status != domain.FillStatusFilled {
		t.Fatalf("third poll status = %s, want FILLED", rep.Status)
	}
}

func TestPaperPartialFill(t *testing.T) {
	g := NewPaper(testLogger())
	g.PartialRatio = 0.7
	ctx := context.Background()

	id, _ := g.Submit(ctx, domain.IntentBuy, 100.0, 10)
	rep, _ := g.PollFill(ctx, id)
	if rep.Status != domain.FillStatusPartial {
		t.Fatalf("status = %s, want PARTIAL", rep.Status)
	}
	if rep.FilledQty != 7 {
		t.Errorf("filled = %d, want 7", rep.FilledQty)
	}
	if rep.Terminal() {
		t.Error("partial fill must not be terminal")
	}
}

func TestPaperRejection(t *testing.T) {
	g := NewPaper(testLogger())
	g.RejectAll = true
	ctx := context.Background()

	id, _ := g.Submit(ctx, domain.IntentBuy, 100.0, 10)
	rep, _ := g.PollFill(ctx, id)
	if rep.Status != domain.FillStatusRejected {
		t.Fatalf("status = %s, want REJECTED", rep.Status)
	}
	if !rep.Terminal() {
		t.Error("rejection should be terminal")
	}
}

func TestPaperUnknownOrder(t *testing.T) {
	g := NewPaper(testLogger())
	_, err := g.PollFill(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPaperRejectsNonPositiveQuantity(t *testing.T) {
	g := NewPaper(testLogger())
	_, err := g.Submit(context.Background(), domain.IntentBuy, 100.0, 0)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
