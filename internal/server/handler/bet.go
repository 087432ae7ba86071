package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tapbot/internal/domain"
)

// BetHandler serves bet listing and placement.
type BetHandler struct {
	engine Engine
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler over the engine.
func NewBetHandler(engine Engine, logger *slog.Logger) *BetHandler {
	return &BetHandler{engine: engine, logger: logHandler(logger, "bet")}
}

// placeBetRequest selects a cell from the current grid by id.
type placeBetRequest struct {
	BoxID string `json:"box_id"`
}

// ListBets returns the session's active and completed bets.
// GET /api/bets
func (h *BetHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	state := h.engine.State()
	active := make([]BetDTO, len(state.ActiveBets))
	for i, b := range state.ActiveBets {
		active[i] = toBetDTO(b)
	}
	completed := make([]CompletedBetDTO, len(state.CompletedBets))
	for i, c := range state.CompletedBets {
		completed[i] = toCompletedBetDTO(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":    active,
		"completed": completed,
	})
}

// PlaceBet places a bet on a cell of the current grid.
// POST /api/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BoxID == "" {
		writeError(w, http.StatusBadRequest, "box_id is required")
		return
	}

	g, err := h.engine.Grid()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "price feed not ready")
		return
	}
	box, ok := g.FindBox(req.BoxID)
	if !ok {
		// The grid regenerates on every tick; a stale id is a client
		// that tapped an outdated cell.
		writeError(w, http.StatusConflict, "grid cell no longer available")
		return
	}

	bet, err := h.engine.PlaceBet(r.Context(), box)
	if err != nil {
		h.writePlacementError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBetDTO(bet))
}

// writePlacementError maps placement failures onto HTTP statuses so the
// client can react without parsing messages.
func (h *BetHandler) writePlacementError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrPlacementInFlight):
		writeError(w, http.StatusConflict, "a placement is already in flight")
	case errors.Is(err, domain.ErrInsufficientBalance):
		writeError(w, http.StatusUnprocessableEntity, "insufficient available balance")
	case errors.Is(err, domain.ErrInvalidAsset):
		writeError(w, http.StatusBadRequest, "asset is not tradable")
	case errors.Is(err, domain.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, "not connected")
	case errors.Is(err, domain.ErrOrderRejected):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, domain.ErrEngineClosed):
		writeError(w, http.StatusServiceUnavailable, "engine is shut down")
	default:
		h.logger.ErrorContext(r.Context(), "bet placement failed",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "bet placement failed")
	}
}
