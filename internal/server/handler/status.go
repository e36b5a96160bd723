package handler

import (
	"net/http"
	"time"
)

// StatusHandler reports runtime metadata for dashboards: operating mode,
// circuit-breaker state, and uptime.
type StatusHandler struct {
	mode      string
	paused    func() bool
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler. paused is polled on every request
// so the breaker state is always current.
func NewStatusHandler(mode string, paused func() bool, startedAt time.Time) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		paused:    paused,
		startedAt: startedAt,
	}
}

// GetStatus returns the current runtime status.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"paused":         h.paused(),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
