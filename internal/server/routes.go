package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Dashboard data
	mux.HandleFunc("/api/indicators", s.app.IndicatorsHandler.GetIndicatorsHandler)
	mux.HandleFunc("/api/indicators/refresh", s.app.IndicatorsHandler.RefreshHandler)
	mux.HandleFunc("/api/analysis", s.app.AnalysisHandler.GetAnalysisHandler)
	mux.HandleFunc("/api/cache/status", s.app.CacheHandler.StatusHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}
