package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/huddle/api/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string    `json:"token"`
	User  userBrief `json:"user"`
}

type userBrief struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidJSON, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidationError, "Email and password are required")
		return
	}

	u, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
		case errors.Is(err, auth.ErrUserDeactivated):
			writeError(w, http.StatusUnauthorized, "USER_DEACTIVATED", "Account is deactivated")
		default:
			h.logger.Error("login failed", "error", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "An error occurred")
		}
		return
	}

	token, err := h.sessions.Create(u.ID)
	if err != nil {
		h.logger.Error("session create failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "An error occurred")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token: token,
		User:  userBrief{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName},
	})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.SessionToken(r.Context())
	if token == "" {
		token = auth.BearerToken(r)
	}
	if token != "" {
		if err := h.sessions.Delete(token); err != nil {
			h.logger.Error("session delete failed", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
