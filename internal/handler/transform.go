package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/huddle/api/internal/imaging"
)

type transformRequest struct {
	URL string `json:"url"`
}

type transformResponse struct {
	Full   string `json:"full"`
	Thumb  string `json:"thumb"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Transform handles POST /api/transform: fetch a remote image, return both
// resized variants base64-encoded plus the original dimensions.
func (h *Handler) Transform(w http.ResponseWriter, r *http.Request) {
	var req transformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidJSON, "Invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidationError, "url is required")
		return
	}

	res, err := h.transformer.Process(r.Context(), req.URL)
	if err != nil {
		switch {
		case errors.Is(err, imaging.ErrBadURL):
			writeError(w, http.StatusBadRequest, ErrCodeInvalidURL, "Only http and https URLs are supported")
		case errors.Is(err, imaging.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeImageTooLarge, "Source image exceeds the size limit")
		case errors.Is(err, imaging.ErrTimeout):
			writeError(w, http.StatusGatewayTimeout, ErrCodeUpstreamTimeout, "Fetching the source image timed out")
		case errors.Is(err, imaging.ErrNotAnImage), errors.Is(err, imaging.ErrCorrupt), errors.Is(err, imaging.ErrFetchFailed):
			writeError(w, http.StatusBadGateway, ErrCodeUpstreamFailed, "Source image could not be fetched or decoded")
		default:
			h.logger.Error("transform failed", "url", req.URL, "error", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "An error occurred")
		}
		return
	}

	writeJSON(w, http.StatusOK, transformResponse{
		Full:   base64.StdEncoding.EncodeToString(res.Full),
		Thumb:  base64.StdEncoding.EncodeToString(res.Thumb),
		Width:  res.Width,
		Height: res.Height,
	})
}
