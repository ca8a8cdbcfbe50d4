package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/huddle/api/internal/access"
	"github.com/huddle/api/internal/auth"
	"github.com/huddle/api/internal/blob"
)

// ServeImage handles GET /api/images/{conversationId}/{ref}. Access runs
// through the gate; denials collapse to 401/403 without detail.
func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "conversationId")
	ref := chi.URLParam(r, "ref")

	d, err := h.gate.Authorize(r.Context(), auth.BearerToken(r), convID)
	if err != nil {
		h.logger.Error("authorize failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "An error occurred")
		return
	}
	if !d.Allowed {
		switch d.Reason {
		case access.DeniedInvalidSession, access.DeniedSessionExpired, access.DeniedNoUser:
			writeError(w, http.StatusUnauthorized, ErrCodeNotAuthenticated, "Authentication required")
		default:
			writeError(w, http.StatusForbidden, ErrCodePermissionDenied, "Permission denied")
		}
		return
	}

	rc, contentType, err := h.blobs.Open(r.Context(), ref)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Image not found")
			return
		}
		h.logger.Error("blob open failed", "ref", ref, "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "An error occurred")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	// Refs are content-addressed; the bytes behind one never change.
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	_, _ = io.Copy(w, rc)
}
