package http

import (
	"net/http"

	"signalbot-backend/internal/usecase"
)

// StatusHandler serves the bot status and the terminal connection check.
type StatusHandler struct {
	bot *usecase.SignalBot
}

func NewStatusHandler(bot *usecase.SignalBot) *StatusHandler {
	return &StatusHandler{bot: bot}
}

// GetStatus handles GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.bot.RefreshStatus(r.Context()))
}

// UpdateStatus handles PUT /api/status. Unknown fields are ignored.
func (h *StatusHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := decodeJSON(r, &fields); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	status, err := h.bot.UpdateStatus(r.Context(), usecase.ParseStatusPatch(fields))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ResetDaily handles POST /api/status/reset_daily
func (h *StatusHandler) ResetDaily(w http.ResponseWriter, r *http.Request) {
	status, err := h.bot.ResetDailyCounters(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Connection handles GET /api/connection
func (h *StatusHandler) Connection(w http.ResponseWriter, r *http.Request) {
	if h.bot.SimulationMode() {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "simulation",
			"message": "Running in simulation mode",
		})
		return
	}
	resp := map[string]string{"status": "connected"}
	if err := h.bot.CheckConnection(r.Context()); err != nil {
		resp["status"] = "disconnected"
		resp["message"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
