package http

import (
	"net/http"
	"time"

	"signalbot-backend/internal/repository"
)

type TokenHandler struct {
	tokenRepo *repository.TokenRepository
	now       func() time.Time
}

func NewTokenHandler(tokenRepo *repository.TokenRepository) *TokenHandler {
	return &TokenHandler{
		tokenRepo: tokenRepo,
		now:       time.Now,
	}
}

type RegisterTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type TokenResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// HandleRegisterToken handles POST /api/tokens/register
func (h *TokenHandler) HandleRegisterToken(w http.ResponseWriter, r *http.Request) {
	var req RegisterTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "Token is required")
		return
	}

	if req.Platform == "" {
		req.Platform = "android"
	}

	h.tokenRepo.RegisterToken(req.Token, req.Platform, h.now())

	writeJSON(w, http.StatusOK, TokenResponse{
		Success: true,
		Message: "Token registered successfully",
		Count:   h.tokenRepo.Count(),
	})
}

// HandleUnregisterToken handles POST /api/tokens/unregister
func (h *TokenHandler) HandleUnregisterToken(w http.ResponseWriter, r *http.Request) {
	var req RegisterTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "Token is required")
		return
	}

	msg := "Token unregistered successfully"
	if !h.tokenRepo.UnregisterToken(req.Token) {
		msg = "Token was not registered"
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		Success: true,
		Message: msg,
		Count:   h.tokenRepo.Count(),
	})
}

// HandleGetTokenCount handles GET /api/tokens/count
func (h *TokenHandler) HandleGetTokenCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TokenResponse{
		Success: true,
		Message: "Token count retrieved",
		Count:   h.tokenRepo.Count(),
	})
}
