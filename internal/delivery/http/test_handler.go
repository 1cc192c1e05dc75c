package http

import (
	"context"
	"net/http"
	"time"

	"signalbot-backend/internal/infrastructure/fcm"
	"signalbot-backend/internal/usecase"
)

// PushTester sends a fixed notification to every registered device.
type PushTester interface {
	SendTest(ctx context.Context) (int, error)
}

type TestHandler struct {
	notifier *usecase.Notifier
	push     PushTester
	now      func() time.Time
}

func NewTestHandler(notifier *usecase.Notifier, push PushTester) *TestHandler {
	return &TestHandler{
		notifier: notifier,
		push:     push,
		now:      time.Now,
	}
}

// SendTestNotification handles POST /api/notifications/test. It sends the
// first sample signal through every transport and reports each outcome.
func (h *TestHandler) SendTestNotification(w http.ResponseWriter, r *http.Request) {
	transports := h.notifier.Transports()
	if len(transports) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "No notification transports configured",
		})
		return
	}

	signal := usecase.SampleSignals()[0]
	signal.Reason = "Test notification: " + signal.Reason
	signal.CreatedAt = h.now()

	results := h.notifier.Notify(r.Context(), signal)
	success := true
	for _, ok := range results {
		success = success && ok
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": success,
		"results": results,
	})
}

// SendTestPush handles POST /api/tokens/test
func (h *TestHandler) SendTestPush(w http.ResponseWriter, r *http.Request) {
	if h.push == nil {
		writeErr(w, fcm.ErrDisabled)
		return
	}
	count, err := h.push.SendTest(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{
			"success": false,
			"message": "Failed to send notification: " + err.Error(),
			"count":   count,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Test notification sent successfully",
		"count":   count,
	})
}
