package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/huddle/api/internal/auth"
	"github.com/huddle/api/internal/handler"
	"github.com/huddle/api/internal/ratelimit"
)

// NewRouter creates the HTTP router with all routes registered.
func NewRouter(h *handler.Handler, sessions *auth.SessionStore, limiter *ratelimit.Limiter, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         86400,
		}))
	}

	r.Use(ratelimit.Middleware(limiter))
	r.Use(auth.TokenMiddleware(sessions))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)
		r.Post("/auth/logout", h.Logout)

		// Gated inside the handler so <img> tags work with the session
		// cookie alone.
		r.Get("/images/{conversationId}/{ref}", h.ServeImage)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth())
			r.Post("/messages", h.CreateMessage)
			r.Get("/messages/{id}", h.GetMessage)
			r.Get("/previews", h.GetPreviews)
			r.Post("/transform", h.Transform)
		})
	})

	return otelhttp.NewHandler(r, "huddle.api")
}

// RequestLogger logs each request with status and duration via slog.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}
