package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alanyoungcy/tapbot/internal/domain"
)

// SettingsHandler updates the session's mutable settings: the selected
// asset and the per-tap stake.
type SettingsHandler struct {
	engine Engine
}

// NewSettingsHandler creates a SettingsHandler over the engine.
func NewSettingsHandler(engine Engine) *SettingsHandler {
	return &SettingsHandler{engine: engine}
}

// updateSettingsRequest carries optional setting updates; absent fields
// are left unchanged.
type updateSettingsRequest struct {
	Asset     *string  `json:"asset"`
	BetAmount *float64 `json:"bet_amount"`
}

// UpdateSettings applies asset and bet-amount changes.
// PUT /api/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Asset != nil {
		if err := h.engine.SetAsset(*req.Asset); err != nil {
			if errors.Is(err, domain.ErrInvalidAsset) {
				writeError(w, http.StatusBadRequest, "unknown asset")
				return
			}
			writeError(w, http.StatusInternalServerError, "asset switch failed")
			return
		}
	}
	if req.BetAmount != nil {
		if err := h.engine.SetBetAmount(*req.BetAmount); err != nil {
			writeError(w, http.StatusBadRequest, "bet amount must be positive")
			return
		}
	}

	writeJSON(w, http.StatusOK, toStateDTO(h.engine.State()))
}
