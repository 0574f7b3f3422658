package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/respond"
	services "github.com/calcutta/console/internal/service/auth"
)

type AuthHandler struct {
	Service *services.AuthService
	Log     *logger.Logger
}

// NewAuthHandler creates a new instance of AuthHandler
func NewAuthHandler(service *services.AuthService) *AuthHandler {
	return &AuthHandler{Service: service, Log: logger.NewLogger("auth-handler")}
}

type sessionRequest struct {
	Token string `json:"token"`
}

// CreateSession stores an API token in the session cookie
func (h *AuthHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8192)).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidRequest, "Invalid request payload")
		return
	}

	user, cookie, err := h.Service.Open(req.Token)
	if err != nil {
		h.Log.WithContext(r.Context()).Warn("Rejected session", "error", err)
		respond.Error(w, http.StatusUnauthorized, respond.CodeUnauthorized, "Invalid or expired token")
		return
	}

	http.SetCookie(w, cookie)
	h.Log.WithContext(r.Context()).WithUser(user.UserID).Info("Session opened")
	respond.JSON(w, http.StatusOK, map[string]interface{}{"user_details": user, "name": user.DisplayName()})
}

// DeleteSession clears the session cookie
func (h *AuthHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.Service.Close())
	w.WriteHeader(http.StatusNoContent)
}
