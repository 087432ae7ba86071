package handler

import (
	"context"
	"net/http"

	"github.com/alanyoungcy/tapbot/internal/domain"
)

// Engine is the slice of the tap engine the HTTP API consumes.
type Engine interface {
	State() domain.EngineState
	Grid() (domain.Grid, error)
	PlaceBet(ctx context.Context, box domain.GridBox) (domain.TapBet, error)
	SetAsset(symbol string) error
	SetBetAmount(amount float64) error
}

// StateHandler serves the consolidated session view.
type StateHandler struct {
	engine Engine
}

// NewStateHandler creates a StateHandler over the engine.
func NewStateHandler(engine Engine) *StateHandler {
	return &StateHandler{engine: engine}
}

// GetState returns the full session snapshot.
// GET /api/state
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStateDTO(h.engine.State()))
}
