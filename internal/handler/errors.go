package handler

import (
	"encoding/json"
	"net/http"
)

// Common error codes
const (
	ErrCodeInvalidJSON      = "INVALID_JSON"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeNotAuthenticated = "NOT_AUTHENTICATED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeValidationError  = "VALIDATION_ERROR"
	ErrCodeInvalidURL       = "INVALID_URL"
	ErrCodeImageTooLarge    = "IMAGE_TOO_LARGE"
	ErrCodeUpstreamFailed   = "UPSTREAM_FAILED"
	ErrCodeUpstreamTimeout  = "UPSTREAM_TIMEOUT"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: message}})
}
