package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"signalbot-backend/internal/domain"
	"signalbot-backend/internal/infrastructure/fcm"
	"signalbot-backend/internal/infrastructure/notify"
)

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Status: "error", Error: msg})
}

// writeErr picks the status code from the sentinel err wraps.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPresetNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidSignal), errors.Is(err, domain.ErrInvalidPreset),
		errors.Is(err, domain.ErrSimulationOnly):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrExecutionUnavailable), errors.Is(err, fcm.ErrDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, notify.ErrNoDevices):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
