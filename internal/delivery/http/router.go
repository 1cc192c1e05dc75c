package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"signalbot-backend/internal/repository"
	"signalbot-backend/internal/usecase"
)

type AuthConfig struct {
	Enabled  bool
	Username string
	Password string
}

// RouterDeps are the collaborators the API is assembled from. Push, WS and
// Metrics may be nil.
type RouterDeps struct {
	Bot       *usecase.SignalBot
	Simulator *usecase.Simulator
	Notifier  *usecase.Notifier
	Tokens    *repository.TokenRepository
	Push      PushTester
	WS        http.HandlerFunc
	Metrics   http.Handler
	Auth      AuthConfig
	Log       zerolog.Logger
}

func NewRouter(d RouterDeps) *mux.Router {
	signals := NewSignalHandler(d.Bot, d.Simulator)
	settings := NewSettingsHandler(d.Bot)
	status := NewStatusHandler(d.Bot)
	tokens := NewTokenHandler(d.Tokens)
	tests := NewTestHandler(d.Notifier, d.Push)

	r := mux.NewRouter()
	r.Use(RequestLogger(d.Log.With().Str("component", "http").Logger()))

	if d.WS != nil {
		r.HandleFunc("/ws", d.WS).Methods(http.MethodGet)
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/debug/presets", settings.DebugPresets).Methods(http.MethodGet)

	protected := r.NewRoute().Subrouter()
	if d.Auth.Enabled {
		protected.Use(BasicAuth(d.Auth.Username, d.Auth.Password))
	}

	protected.HandleFunc("/api/signals", signals.GetSignals).Methods(http.MethodGet)
	protected.HandleFunc("/api/add_signal", signals.AddSignal).Methods(http.MethodPost)
	protected.HandleFunc("/api/execute_signal", signals.ExecuteSignal).Methods(http.MethodPost)
	protected.HandleFunc("/dev/simulate_signal", signals.SimulateSignal).Methods(http.MethodPost)

	protected.HandleFunc("/api/settings", settings.GetSettings).Methods(http.MethodGet)
	protected.HandleFunc("/api/settings", settings.UpdateSettings).Methods(http.MethodPut)
	protected.HandleFunc("/api/presets", settings.ListPresets).Methods(http.MethodGet)
	protected.HandleFunc("/api/presets/{name}", settings.SavePreset).Methods(http.MethodPut)
	protected.HandleFunc("/api/presets/{name}", settings.DeletePreset).Methods(http.MethodDelete)
	protected.HandleFunc("/api/presets/{name}/load", settings.LoadPreset).Methods(http.MethodPost)
	protected.HandleFunc("/load_preset/{name}", settings.LoadPreset).Methods(http.MethodGet)

	protected.HandleFunc("/api/status", status.GetStatus).Methods(http.MethodGet)
	protected.HandleFunc("/api/status", status.UpdateStatus).Methods(http.MethodPut)
	protected.HandleFunc("/api/status/reset_daily", status.ResetDaily).Methods(http.MethodPost)
	protected.HandleFunc("/api/connection", status.Connection).Methods(http.MethodGet)

	protected.HandleFunc("/api/notifications/test", tests.SendTestNotification).Methods(http.MethodPost)
	protected.HandleFunc("/api/tokens/register", tokens.HandleRegisterToken).Methods(http.MethodPost)
	protected.HandleFunc("/api/tokens/unregister", tokens.HandleUnregisterToken).Methods(http.MethodPost)
	protected.HandleFunc("/api/tokens/count", tokens.HandleGetTokenCount).Methods(http.MethodGet)
	protected.HandleFunc("/api/tokens/test", tests.SendTestPush).Methods(http.MethodPost)

	return r
}
