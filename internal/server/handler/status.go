package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/gridbot/internal/domain"
	"github.com/alanyoungcy/gridbot/internal/engine"
)

// SnapshotSource yields the engine state served by the status endpoints. A
// live engine and a snapshot store both satisfy it, so the same handler works
// whether or not trading is running in-process.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (domain.EngineSnapshot, error)
}

// EngineController exposes the operator controls. It is nil when the server
// is not attached to a live engine, in which case the control endpoints are
// rejected.
type EngineController interface {
	Resume()
	ResetTier(id int) bool
}

// EngineSource adapts a live engine into a SnapshotSource.
func EngineSource(eng *engine.Engine) SnapshotSource {
	return engineSource{eng: eng}
}

type engineSource struct {
	eng *engine.Engine
}

func (s engineSource) Snapshot(ctx context.Context) (domain.EngineSnapshot, error) {
	return s.eng.Snapshot(), nil
}

// StoreSource adapts a snapshot store into a SnapshotSource serving the most
// recently persisted snapshot for one symbol.
func StoreSource(store domain.SnapshotStore, symbol string) SnapshotSource {
	return storeSource{store: store, symbol: symbol}
}

type storeSource struct {
	store  domain.SnapshotStore
	symbol string
}

func (s storeSource) Snapshot(ctx context.Context) (domain.EngineSnapshot, error) {
	return s.store.LatestSnapshot(ctx, s.symbol)
}

// StatusHandler serves the engine's current state: a summary, the full tier
// book, and held positions. It also exposes the two operator controls, resume
// and tier reset, when a live engine is attached.
type StatusHandler struct {
	src    SnapshotSource
	ctrl   EngineController
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler. ctrl may be nil for read-only
// deployments.
func NewStatusHandler(src SnapshotSource, ctrl EngineController, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		src:    src,
		ctrl:   ctrl,
		logger: logger.With(slog.String("handler", "status")),
	}
}

type statusResponse struct {
	Symbol         string         `json:"symbol"`
	ReferencePrice float64        `json:"reference_price"`
	Suspended      bool           `json:"suspended"`
	Cash           float64        `json:"cash"`
	HeldQuantity   int64          `json:"held_quantity"`
	TierStates     map[string]int `json:"tier_states"`
	TakenAt        time.Time      `json:"taken_at"`
}

type tierResponse struct {
	ID          int     `json:"id"`
	BuyPrice    float64 `json:"buy_price"`
	SellPrice   float64 `json:"sell_price"`
	State       string  `json:"state"`
	OrderID     string  `json:"order_id,omitempty"`
	OrderedQty  int64   `json:"ordered_qty,omitempty"`
	FilledQty   int64   `json:"filled_qty,omitempty"`
	FilledPrice float64 `json:"filled_price,omitempty"`
	ErrorMsg    string  `json:"error_msg,omitempty"`
	RetryCount  int     `json:"retry_count,omitempty"`
}

type positionResponse struct {
	TierID         int       `json:"tier_id"`
	Quantity       int64     `json:"quantity"`
	AveragePrice   float64   `json:"average_price"`
	InvestedAmount float64   `json:"invested_amount"`
	OpenedAt       time.Time `json:"opened_at"`
}

func (h *StatusHandler) snapshot(w http.ResponseWriter, r *http.Request) (domain.EngineSnapshot, bool) {
	snap, err := h.src.Snapshot(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no snapshot recorded yet")
		} else {
			h.logger.ErrorContext(r.Context(), "snapshot load failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "snapshot unavailable")
		}
		return domain.EngineSnapshot{}, false
	}
	return snap, true
}

// GetStatus returns a one-page summary of the engine state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}

	states := make(map[string]int)
	for _, t := range snap.Tiers {
		states[string(t.State)]++
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Symbol:         snap.Symbol,
		ReferencePrice: snap.ReferencePrice,
		Suspended:      snap.Suspended,
		Cash:           snap.Account.Cash,
		HeldQuantity:   snap.HeldQuantity(),
		TierStates:     states,
		TakenAt:        snap.TakenAt,
	})
}

// ListTiers returns the full tier book.
// GET /api/tiers
func (h *StatusHandler) ListTiers(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}

	tiers := make([]tierResponse, 0, len(snap.Tiers))
	for _, t := range snap.Tiers {
		tiers = append(tiers, tierFromDomain(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tiers": tiers})
}

// ListPositions returns all held positions in tier order.
// GET /api/positions
func (h *StatusHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}

	positions := make([]positionResponse, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		positions = append(positions, positionResponse{
			TierID:         p.TierID,
			Quantity:       p.Quantity,
			AveragePrice:   p.AveragePrice,
			InvestedAmount: p.InvestedAmount,
			OpenedAt:       p.OpenedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// Resume lifts an emergency suspension.
// POST /api/resume
func (h *StatusHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if h.ctrl == nil {
		writeError(w, http.StatusForbidden, "engine controls are not available on this instance")
		return
	}
	h.ctrl.Resume()
	h.logger.InfoContext(r.Context(), "trading resumed via api")
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// ResetTier resets an errored tier back to empty.
// POST /api/tiers/{id}/reset
func (h *StatusHandler) ResetTier(w http.ResponseWriter, r *http.Request) {
	if h.ctrl == nil {
		writeError(w, http.StatusForbidden, "engine controls are not available on this instance")
		return
	}
	id, err := strconv.Atoi(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tier id")
		return
	}
	if !h.ctrl.ResetTier(id) {
		writeError(w, http.StatusConflict, "tier is not in error state")
		return
	}
	h.logger.InfoContext(r.Context(), "tier reset via api", slog.Int("tier", id))
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset", "tier": id})
}

func tierFromDomain(t domain.Tier) tierResponse {
	return tierResponse{
		ID:          t.ID,
		BuyPrice:    t.BuyPrice,
		SellPrice:   t.SellPrice,
		State:       string(t.State),
		OrderID:     t.OrderID,
		OrderedQty:  t.OrderedQty,
		FilledQty:   t.FilledQty,
		FilledPrice: t.FilledPrice,
		ErrorMsg:    t.ErrorMsg,
		RetryCount:  t.RetryCount,
	}
}
