package feed

import (
	"testing"
	"time"
)

func TestParseTrade(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantOK    bool
		wantPrice float64
	}{
		{
			name:      "valid trade",
			data:      `{"type":"trade","symbol":"BTC-USD","price":"97.50","time":"2026-08-29T12:00:00Z"}`,
			wantOK:    true,
			wantPrice: 97.50,
		},
		{
			name:   "non-trade message",
			data:   `{"type":"heartbeat"}`,
			wantOK: false,
		},
		{
			name:   "missing price",
			data:   `{"type":"trade","symbol":"BTC-USD"}`,
			wantOK: false,
		},
		{
			name:   "unparseable price",
			data:   `{"type":"trade","symbol":"BTC-USD","price":"abc"}`,
			wantOK: false,
		},
		{
			name:   "non-positive price",
			data:   `{"type":"trade","symbol":"BTC-USD","price":"0"}`,
			wantOK: false,
		},
		{
			name:   "malformed json",
			data:   `{not json`,
			wantOK: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tick, ok := parseTrade([]byte(tc.data))
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if tick.Price != tc.wantPrice {
				t.Errorf("price = %f, want %f", tick.Price, tc.wantPrice)
			}
			if tick.Symbol != "BTC-USD" {
				t.Errorf("symbol = %q", tick.Symbol)
			}
		})
	}
}

func TestParseTradeFallsBackToNowOnBadTimestamp(t *testing.T) {
	before := time.Now().UTC()
	tick, ok := parseTrade([]byte(`{"type":"trade","symbol":"BTC-USD","price":"100","time":"garbage"}`))
	if !ok {
		t.Fatal("expected ok")
	}
	if tick.Ts.Before(before.Add(-time.Second)) {
		t.Errorf("ts = %v, want roughly now", tick.Ts)
	}
}
