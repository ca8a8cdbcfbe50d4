// Package handler implements the HTTP API: auth, messages, batch preview
// reads, gated image serving, and the synchronous transform endpoint.
package handler

import (
	"log/slog"

	"github.com/huddle/api/internal/access"
	"github.com/huddle/api/internal/auth"
	"github.com/huddle/api/internal/blob"
	"github.com/huddle/api/internal/imaging"
	"github.com/huddle/api/internal/message"
	"github.com/huddle/api/internal/pipeline"
	"github.com/huddle/api/internal/preview"
)

type Handler struct {
	authService   *auth.Service
	sessions      *auth.SessionStore
	messages      *message.Repository
	previews      *preview.Repository
	blobs         blob.Store
	gate          *access.Gate
	transformer   *imaging.Transformer
	pipeline      *pipeline.Pipeline
	logger        *slog.Logger
	secureCookies bool
}

// Dependencies holds all dependencies for the Handler.
type Dependencies struct {
	AuthService   *auth.Service
	Sessions      *auth.SessionStore
	Messages      *message.Repository
	Previews      *preview.Repository
	Blobs         blob.Store
	Gate          *access.Gate
	Transformer   *imaging.Transformer
	Pipeline      *pipeline.Pipeline
	Logger        *slog.Logger
	SecureCookies bool
}

// New creates a new Handler with all dependencies.
func New(deps Dependencies) *Handler {
	return &Handler{
		authService:   deps.AuthService,
		sessions:      deps.Sessions,
		messages:      deps.Messages,
		previews:      deps.Previews,
		blobs:         deps.Blobs,
		gate:          deps.Gate,
		transformer:   deps.Transformer,
		pipeline:      deps.Pipeline,
		logger:        deps.Logger,
		secureCookies: deps.SecureCookies,
	}
}
