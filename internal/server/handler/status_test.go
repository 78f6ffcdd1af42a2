package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/gridbot/internal/domain"
	"github.com/alanyoungcy/gridbot/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	return engine.New(engine.Config{
		Symbol:                "BTC-USD",
		TotalTiers:            5,
		BuyIntervalRate:       0.005,
		SellTargetRate:        0.03,
		CapitalPerTier:        1000,
		TradeTierOne:          true,
		MaxBatchOrders:        3,
		MinPrice:              0.01,
		MaxOrderQty:           100000,
		InitialReferencePrice: 100,
		InitialCash:           5000,
	}, testLogger())
}

func newMux(h *StatusHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", h.GetStatus)
	mux.HandleFunc("GET /api/tiers", h.ListTiers)
	mux.HandleFunc("GET /api/positions", h.ListPositions)
	mux.HandleFunc("POST /api/resume", h.Resume)
	mux.HandleFunc("POST /api/tiers/{id}/reset", h.ResetTier)
	return mux
}

func TestGetStatus(t *testing.T) {
	eng := testEngine(t)
	mux := newMux(NewStatusHandler(EngineSource(eng), eng, testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Symbol != "BTC-USD" {
		t.Errorf("symbol = %q", resp.Symbol)
	}
	if resp.ReferencePrice != 100 {
		t.Errorf("reference = %f, want 100", resp.ReferencePrice)
	}
	if resp.TierStates["empty"] != 5 {
		t.Errorf("empty tiers = %d, want 5", resp.TierStates["empty"])
	}
}

func TestListTiers(t *testing.T) {
	eng := testEngine(t)
	mux := newMux(NewStatusHandler(EngineSource(eng), eng, testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tiers", nil))

	var resp struct {
		Tiers []tierResponse `json:"tiers"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Tiers) != 5 {
		t.Fatalf("tiers = %d, want 5", len(resp.Tiers))
	}
	if resp.Tiers[0].BuyPrice != 100 {
		t.Errorf("tier 1 buy price = %f, want 100", resp.Tiers[0].BuyPrice)
	}
}

func TestResetTierRejectsNonError(t *testing.T) {
	eng := testEngine(t)
	mux := newMux(NewStatusHandler(EngineSource(eng), eng, testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tiers/1/reset", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestResetTierInvalidID(t *testing.T) {
	eng := testEngine(t)
	mux := newMux(NewStatusHandler(EngineSource(eng), eng, testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tiers/abc/reset", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestResume(t *testing.T) {
	eng := testEngine(t)
	// Force the emergency stop by filling the worst tier.
	if !eng.ForceFill(5, 10, 98.0) {
		t.Fatal("force fill failed")
	}
	if !eng.Suspended() {
		t.Fatal("engine should be suspended after worst-tier fill")
	}

	mux := newMux(NewStatusHandler(EngineSource(eng), eng, testLogger()))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/resume", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if eng.Suspended() {
		t.Error("engine still suspended after resume")
	}
}

type stubSnapshotStore struct {
	snap domain.EngineSnapshot
	err  error
}

func (s stubSnapshotStore) SaveSnapshot(ctx context.Context, snap domain.EngineSnapshot) error {
	return nil
}

func (s stubSnapshotStore) LatestSnapshot(ctx context.Context, symbol string) (domain.EngineSnapshot, error) {
	return s.snap, s.err
}

func TestStoreSourceServesPersistedSnapshot(t *testing.T) {
	store := stubSnapshotStore{snap: domain.EngineSnapshot{
		Symbol:         "ETH-USD",
		ReferencePrice: 2500,
		Account:        domain.Account{Cash: 1234},
		TakenAt:        time.Now(),
	}}
	mux := newMux(NewStatusHandler(StoreSource(store, "ETH-USD"), nil, testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Symbol != "ETH-USD" || resp.Cash != 1234 {
		t.Errorf("unexpected snapshot: %+v", resp)
	}
}

func TestStoreSourceNotFound(t *testing.T) {
	store := stubSnapshotStore{err: domain.ErrNotFound}
	mux := newMux(NewStatusHandler(StoreSource(store, "ETH-USD"), nil, testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestControlsRejectedWithoutEngine(t *testing.T) {
	store := stubSnapshotStore{snap: domain.EngineSnapshot{Symbol: "ETH-USD"}}
	mux := newMux(NewStatusHandler(StoreSource(store, "ETH-USD"), nil, testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/resume", nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}
