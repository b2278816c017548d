package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
)

// StatusHandler reports version, uptime, and LLM provider reachability.
type StatusHandler struct {
	started time.Time
	health  func() map[string]string
	logger  arbor.ILogger
}

// NewStatusHandler creates the status endpoint. The health callback returns
// a component -> state map; it may be nil.
func NewStatusHandler(health func() map[string]string, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		started: time.Now().UTC(),
		health:  health,
		logger:  logger,
	}
}

// ServeHTTP handles GET /status.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	status := map[string]any{
		"service": "finwire",
		"version": common.GetFullVersion(),
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	}
	if h.health != nil {
		status["components"] = h.health()
	}
	WriteSuccess(w, status, "")
}
