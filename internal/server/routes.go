package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Tool surface: every operation is POST /tools/{name} with the shared
	// envelope and bearer auth.
	mux.Handle("/tools/", s.app.ToolsHandler)

	// WebSocket event stream (ingest and reconcile events)
	mux.Handle("/ws", s.app.WSHandler)

	// System
	mux.Handle("/status", s.app.StatusHandler)

	return mux
}
