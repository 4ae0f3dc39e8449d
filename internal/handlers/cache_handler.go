package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/macropulse/internal/interfaces"
)

// CacheHandler exposes analysis cache occupancy for operations visibility.
type CacheHandler struct {
	inspector interfaces.CacheInspector
	logger    arbor.ILogger
}

func NewCacheHandler(inspector interfaces.CacheInspector, logger arbor.ILogger) *CacheHandler {
	return &CacheHandler{
		inspector: inspector,
		logger:    logger,
	}
}

// StatusHandler handles GET /api/cache/status
func (h *CacheHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	statuses, err := h.inspector.Status(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Cache status query failed")
		WriteError(w, http.StatusInternalServerError, "failed to read cache status")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"variants": statuses,
	})
}
