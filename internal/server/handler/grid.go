package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tapbot/internal/domain"
)

// GridHandler serves the current odds grid.
type GridHandler struct {
	engine Engine
	logger *slog.Logger
}

// NewGridHandler creates a GridHandler over the engine.
func NewGridHandler(engine Engine, logger *slog.Logger) *GridHandler {
	return &GridHandler{engine: engine, logger: logHandler(logger, "grid")}
}

// GetGrid regenerates and returns the grid for the active asset.
// GET /api/grid
func (h *GridHandler) GetGrid(w http.ResponseWriter, r *http.Request) {
	g, err := h.engine.Grid()
	if err != nil {
		if errors.Is(err, domain.ErrNotConnected) {
			writeError(w, http.StatusServiceUnavailable, "price feed not ready")
			return
		}
		h.logger.ErrorContext(r.Context(), "grid generation failed",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "grid generation failed")
		return
	}
	writeJSON(w, http.StatusOK, toGridDTO(g))
}
