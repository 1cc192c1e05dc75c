package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"signalbot-backend/internal/domain"
	"signalbot-backend/internal/usecase"
)

// SettingsHandler serves settings and the preset catalog.
type SettingsHandler struct {
	bot *usecase.SignalBot
}

func NewSettingsHandler(bot *usecase.SignalBot) *SettingsHandler {
	return &SettingsHandler{bot: bot}
}

// GetSettings handles GET /api/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.bot.Settings())
}

// UpdateSettings handles PUT /api/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var input map[string]any
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	settings, err := h.bot.UpdateSettings(r.Context(), input)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// ListPresets handles GET /api/presets
func (h *SettingsHandler) ListPresets(w http.ResponseWriter, r *http.Request) {
	presets := h.bot.Presets()
	out := make([]domain.Preset, 0, len(presets))
	for _, name := range h.bot.PresetNames() {
		out = append(out, presets[name])
	}
	writeJSON(w, http.StatusOK, out)
}

// DebugPresets handles GET /api/debug/presets
func (h *SettingsHandler) DebugPresets(w http.ResponseWriter, r *http.Request) {
	names := h.bot.PresetNames()
	if names == nil {
		names = make([]string, 0)
	}
	writeJSON(w, http.StatusOK, map[string]any{"presets": names})
}

type savePresetRequest struct {
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters"`
}

// SavePreset handles PUT /api/presets/{name}
func (h *SettingsHandler) SavePreset(w http.ResponseWriter, r *http.Request) {
	var req savePresetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	preset := domain.Preset{
		Name:        mux.Vars(r)["name"],
		Description: req.Description,
		Parameters:  req.Parameters,
	}
	if err := h.bot.SavePreset(r.Context(), preset); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "preset": preset.Name})
}

// DeletePreset handles DELETE /api/presets/{name}
func (h *SettingsHandler) DeletePreset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.bot.DeletePreset(r.Context(), name); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "preset": name})
}

// LoadPreset handles POST /api/presets/{name}/load and GET /load_preset/{name}
func (h *SettingsHandler) LoadPreset(w http.ResponseWriter, r *http.Request) {
	settings, err := h.bot.LoadPreset(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
