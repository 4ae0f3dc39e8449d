package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/macropulse/internal/interfaces"
	"github.com/ternarybob/macropulse/internal/models"
)

// AnalysisHandler serves AI market commentary for the current snapshot.
type AnalysisHandler struct {
	analysis       interfaces.AnalysisService
	scheduler      interfaces.SchedulerService
	source         interfaces.IndicatorSource
	defaultVariant models.Variant
	logger         arbor.ILogger
}

func NewAnalysisHandler(analysis interfaces.AnalysisService, scheduler interfaces.SchedulerService, source interfaces.IndicatorSource, defaultVariant models.Variant, logger arbor.ILogger) *AnalysisHandler {
	return &AnalysisHandler{
		analysis:       analysis,
		scheduler:      scheduler,
		source:         source,
		defaultVariant: defaultVariant,
		logger:         logger,
	}
}

// GetAnalysisHandler handles GET /api/analysis?variant=claude|gemini
func (h *AnalysisHandler) GetAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	variant := h.defaultVariant
	if raw := r.URL.Query().Get("variant"); raw != "" {
		parsed, err := models.ParseVariant(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		variant = parsed
	}

	snapshot, ok := h.scheduler.Latest()
	if !ok {
		// Cold start before the first scheduled poll completes.
		fetched, err := h.source.Snapshot(r.Context())
		if err != nil {
			h.logger.Warn().Err(err).Msg("On-demand snapshot fetch failed")
			WriteError(w, http.StatusBadGateway, "market data unavailable")
			return
		}
		snapshot = fetched
	}

	record, err := h.analysis.GetAnalysis(r.Context(), variant, snapshot)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNoAnalysis), errors.Is(err, models.ErrQuotaExceeded):
			WriteError(w, http.StatusServiceUnavailable, "analysis temporarily unavailable: provider quota exceeded")
		case models.IsMissingIndicator(err):
			WriteError(w, http.StatusBadGateway, err.Error())
		default:
			h.logger.Warn().Err(err).Str("variant", variant.String()).Msg("Analysis request failed")
			WriteError(w, http.StatusBadGateway, "analysis provider failed")
		}
		return
	}

	WriteJSON(w, http.StatusOK, record)
}
