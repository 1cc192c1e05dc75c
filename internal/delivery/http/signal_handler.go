package http

import (
	"net/http"

	"signalbot-backend/internal/domain"
	"signalbot-backend/internal/usecase"
)

// SignalHandler serves the signal window, ingestion and execution endpoints.
type SignalHandler struct {
	bot *usecase.SignalBot
	sim *usecase.Simulator
}

func NewSignalHandler(bot *usecase.SignalBot, sim *usecase.Simulator) *SignalHandler {
	return &SignalHandler{bot: bot, sim: sim}
}

// GetSignals handles GET /api/signals
func (h *SignalHandler) GetSignals(w http.ResponseWriter, r *http.Request) {
	signals := h.bot.RefreshSignals(r.Context())
	if signals == nil {
		signals = make([]domain.Signal, 0)
	}
	writeJSON(w, http.StatusOK, signals)
}

// AddSignal handles POST /api/add_signal
func (h *SignalHandler) AddSignal(w http.ResponseWriter, r *http.Request) {
	var signal domain.Signal
	if err := decodeJSON(r, &signal); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	stored, err := h.bot.IngestSignal(r.Context(), signal, usecase.OriginLocal)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Signal added",
		"signal":  stored,
	})
}

// ExecuteSignal handles POST /api/execute_signal
func (h *SignalHandler) ExecuteSignal(w http.ResponseWriter, r *http.Request) {
	var req usecase.ExecutionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.bot.ExecuteSignal(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SimulateSignal handles POST /dev/simulate_signal
func (h *SignalHandler) SimulateSignal(w http.ResponseWriter, r *http.Request) {
	signal, err := h.bot.SimulateSignal(r.Context(), h.sim)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"signal": signal,
	})
}
