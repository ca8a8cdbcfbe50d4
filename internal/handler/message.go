package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/huddle/api/internal/access"
	"github.com/huddle/api/internal/auth"
	"github.com/huddle/api/internal/message"
)

type createMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

// CreateMessage handles POST /api/messages. Detected links get pending embed
// entries immediately; resolution happens asynchronously.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidJSON, "Invalid request body")
		return
	}
	if req.ConversationID == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidationError, "conversation_id and content are required")
		return
	}

	d, err := h.gate.Authorize(r.Context(), auth.SessionToken(r.Context()), req.ConversationID)
	if err != nil {
		h.logger.Error("authorize failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "An error occurred")
		return
	}
	if !d.Allowed {
		h.denyAccess(w, d)
		return
	}

	msg := &message.Message{
		ConversationID: req.ConversationID,
		PlayerID:       &d.PlayerID,
		Content:        req.Content,
	}
	if err := h.messages.Create(r.Context(), msg); err != nil {
		h.logger.Error("message create failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "An error occurred")
		return
	}

	if len(msg.Embeds) > 0 {
		// Detached from the request: resolution outlives the response.
		go h.pipeline.ProcessMessage(context.Background(), msg)
	}

	writeJSON(w, http.StatusCreated, msg)
}

// GetMessage handles GET /api/messages/{id}.
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.messages.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, message.ErrMessageNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Message not found")
			return
		}
		h.logger.Error("message load failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "An error occurred")
		return
	}

	d, err := h.gate.Authorize(r.Context(), auth.SessionToken(r.Context()), msg.ConversationID)
	if err != nil {
		h.logger.Error("authorize failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "An error occurred")
		return
	}
	if !d.Allowed {
		h.denyAccess(w, d)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// denyAccess maps a gate decision onto the narrow status codes the API
// exposes; the per-step reasons stay internal.
func (h *Handler) denyAccess(w http.ResponseWriter, d access.Decision) {
	switch d.Reason {
	case access.DeniedInvalidSession, access.DeniedSessionExpired, access.DeniedNoUser:
		writeError(w, http.StatusUnauthorized, ErrCodeNotAuthenticated, "Authentication required")
	case access.DeniedConversationNotFound:
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Conversation not found")
	default:
		writeError(w, http.StatusForbidden, ErrCodePermissionDenied, "Permission denied")
	}
}
