package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/macropulse/internal/interfaces"
)

// IndicatorsHandler serves the most recent indicator snapshot.
type IndicatorsHandler struct {
	scheduler interfaces.SchedulerService
	logger    arbor.ILogger
}

func NewIndicatorsHandler(scheduler interfaces.SchedulerService, logger arbor.ILogger) *IndicatorsHandler {
	return &IndicatorsHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// GetIndicatorsHandler handles GET /api/indicators
func (h *IndicatorsHandler) GetIndicatorsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	snapshot, ok := h.scheduler.Latest()
	if !ok {
		WriteError(w, http.StatusNotFound, "no snapshot captured yet")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"values":      snapshot.Values,
		"captured_at": snapshot.CapturedAt,
	})
}

// RefreshHandler handles POST /api/indicators/refresh, triggering an
// immediate poll cycle.
func (h *IndicatorsHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	h.scheduler.TriggerNow()
	WriteSuccess(w, "poll triggered")
}
