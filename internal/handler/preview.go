package handler

import (
	"net/http"

	"github.com/huddle/api/internal/auth"
	"github.com/huddle/api/internal/message"
	"github.com/huddle/api/internal/preview"
)

type previewImage struct {
	FullURL  string `json:"full_url"`
	ThumbURL string `json:"thumb_url"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

type previewEntry struct {
	URLHash      string        `json:"url_hash"`
	Type         string        `json:"type"`
	URL          string        `json:"url"`
	Status       string        `json:"status"`
	Title        string        `json:"title,omitempty"`
	Description  string        `json:"description,omitempty"`
	SiteName     string        `json:"site_name,omitempty"`
	FaviconURL   string        `json:"favicon_url,omitempty"`
	Image        *previewImage `json:"image,omitempty"`
	HTML         string        `json:"html,omitempty"`
	AuthorName   string        `json:"author_name,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// GetPreviews handles GET /api/previews?conversation_id=...&hash=...&hash=...
// Hashes with no cache row in either table are omitted from the response.
func (h *Handler) GetPreviews(w http.ResponseWriter, r *http.Request) {
	convID := r.URL.Query().Get("conversation_id")
	hashes := r.URL.Query()["hash"]
	if convID == "" || len(hashes) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidationError, "conversation_id and at least one hash are required")
		return
	}

	d, err := h.gate.Authorize(r.Context(), auth.SessionToken(r.Context()), convID)
	if err != nil {
		h.logger.Error("authorize failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "An error occurred")
		return
	}
	if !d.Allowed {
		h.denyAccess(w, d)
		return
	}

	records, err := h.previews.GetMany(r.Context(), hashes)
	if err != nil {
		h.logger.Error("preview load failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "An error occurred")
		return
	}

	found := make(map[string]bool, len(records))
	entries := make([]previewEntry, 0, len(hashes))
	for _, rec := range records {
		found[rec.URLHash] = true
		entries = append(entries, h.linkEntry(convID, rec))
	}

	// Provider embeds live in their own cache table; the leftovers are
	// looked up in one batch, mirroring the link query.
	var remaining []string
	for _, hash := range hashes {
		if !found[hash] {
			remaining = append(remaining, hash)
		}
	}
	oembeds, err := h.previews.GetManyOembed(r.Context(), remaining)
	if err != nil {
		h.logger.Error("oembed load failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "An error occurred")
		return
	}
	for _, oe := range oembeds {
		entry := previewEntry{
			URLHash:    oe.URLHash,
			Type:       message.EmbedTypeOembed,
			URL:        oe.URL,
			Status:     preview.StatusSuccess,
			HTML:       oe.HTML,
			AuthorName: oe.AuthorName,
		}
		if oe.ThumbnailURL != "" {
			entry.Image = &previewImage{
				FullURL:  oe.ThumbnailURL,
				ThumbURL: oe.ThumbnailURL,
				Width:    oe.ThumbnailWidth,
				Height:   oe.ThumbnailHeight,
			}
		}
		entries = append(entries, entry)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"previews": entries})
}

// linkEntry converts a cache row into its API shape, resolving stored refs
// to gated image URLs and falling back to the original remote image.
func (h *Handler) linkEntry(convID string, rec *preview.Record) previewEntry {
	entry := previewEntry{
		URLHash:      rec.URLHash,
		Type:         message.EmbedTypeLink,
		URL:          rec.OriginalURL,
		Status:       rec.Status,
		Title:        rec.Title,
		Description:  rec.Description,
		SiteName:     rec.SiteName,
		FaviconURL:   rec.FaviconURL,
		ErrorMessage: rec.ErrorMessage,
	}

	switch {
	case rec.ImageFullRef != "" && rec.ImageThumbRef != "":
		entry.Image = &previewImage{
			FullURL:  "/api/images/" + convID + "/" + rec.ImageFullRef,
			ThumbURL: "/api/images/" + convID + "/" + rec.ImageThumbRef,
			Width:    rec.ImageWidth,
			Height:   rec.ImageHeight,
		}
	case rec.OriginalImageURL != "":
		entry.Image = &previewImage{
			FullURL:  rec.OriginalImageURL,
			ThumbURL: rec.OriginalImageURL,
		}
	}
	return entry
}
