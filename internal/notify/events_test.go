package notify

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/alanyoungcy/gridbot/internal/engine"
)

type memSender struct {
	sent []string
}

func (s *memSender) Send(ctx context.Context, title, message string) error {
	s.sent = append(s.sent, title)
	return nil
}

func (s *memSender) Name() string { return "mem" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name      string
		ev        engine.Event
		wantTitle string
		wantIn    string
	}{
		{
			name:      "reference updated",
			ev:        engine.Event{Type: engine.EventReferenceUpdated, Symbol: "BTC-USD", Price: 110.5},
			wantTitle: "Reference updated: BTC-USD",
			wantIn:    "110.5",
		},
		{
			name:      "order filled",
			ev:        engine.Event{Type: engine.EventOrderFilled, Symbol: "BTC-USD", Price: 97.5, Quantity: 30, TierIDs: []int{1, 2, 3}},
			wantTitle: "Order filled: BTC-USD",
			wantIn:    "tiers 1,2,3",
		},
		{
			name:      "suspension",
			ev:        engine.Event{Type: engine.EventTradingSuspended, Symbol: "BTC-USD", Message: "worst tier filled"},
			wantTitle: "TRADING SUSPENDED: BTC-USD",
			wantIn:    "worst tier filled",
		},
		{
			name:      "mismatch",
			ev:        engine.Event{Type: engine.EventReconcileMismatch, Symbol: "BTC-USD", Message: "applied 7 of 9"},
			wantTitle: "Reconcile mismatch: BTC-USD",
			wantIn:    "applied 7 of 9",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			title, message := FormatEvent(tc.ev)
			if title != tc.wantTitle {
				t.Errorf("title = %q, want %q", title, tc.wantTitle)
			}
			if !strings.Contains(message, tc.wantIn) {
				t.Errorf("message %q does not contain %q", message, tc.wantIn)
			}
		})
	}
}

func TestNotifierFiltersByEventType(t *testing.T) {
	sender := &memSender{}
	n := NewNotifier([]Sender{sender}, []string{string(engine.EventTradingSuspended)}, testLogger())
	ctx := context.Background()

	if err := n.Notify(ctx, string(engine.EventOrderFilled), "t1", "m1"); err != nil {
		t.Fatal(err)
	}
	if err := n.Notify(ctx, string(engine.EventTradingSuspended), "t2", "m2"); err != nil {
		t.Fatal(err)
	}

	if len(sender.sent) != 1 || sender.sent[0] != "t2" {
		t.Errorf("sent = %v, want only t2", sender.sent)
	}
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	sender := &memSender{}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	if err := n.Notify(context.Background(), "anything", "t", "m"); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent = %v, want one delivery", sender.sent)
	}
}
