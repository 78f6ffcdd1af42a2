package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/gridbot/internal/domain"
)

// FillHandler serves the fill journal.
type FillHandler struct {
	fills  domain.FillStore
	symbol string
	logger *slog.Logger
}

// NewFillHandler creates a FillHandler reading from the given store.
func NewFillHandler(fills domain.FillStore, symbol string, logger *slog.Logger) *FillHandler {
	return &FillHandler{
		fills:  fills,
		symbol: symbol,
		logger: logger.With(slog.String("handler", "fills")),
	}
}

type fillResponse struct {
	ID       string  `json:"id"`
	IntentID string  `json:"intent_id"`
	OrderID  string  `json:"order_id"`
	Action   string  `json:"action"`
	TierIDs  []int   `json:"tier_ids"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
	Proceeds float64 `json:"proceeds,omitempty"`
	Profit   float64 `json:"profit,omitempty"`
	Success  bool    `json:"success"`
	Reason   string  `json:"reason,omitempty"`
	Recorded string  `json:"recorded_at"`
}

// ListRecent returns the most recent fills, newest first.
// GET /api/fills?limit=N
func (h *FillHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 500)

	fills, err := h.fills.ListRecent(r.Context(), h.symbol, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list fills failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list fills")
		return
	}

	out := make([]fillResponse, 0, len(fills))
	for _, f := range fills {
		out = append(out, fillResponse{
			ID:       f.ID,
			IntentID: f.IntentID,
			OrderID:  f.OrderID,
			Action:   string(f.Action),
			TierIDs:  f.TierIDs,
			Quantity: f.Quantity,
			Price:    f.Price,
			Proceeds: f.Proceeds,
			Profit:   f.Profit,
			Success:  f.Success,
			Reason:   f.Reason,
			Recorded: f.RecordedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"fills": out})
}
