package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	userIDKey contextKey = "userID"
	tokenKey  contextKey = "sessionToken"
)

// TokenMiddleware resolves the bearer token (or session cookie) into a user
// ID on the request context. Requests without a valid session pass through
// unauthenticated; RequireAuth rejects them where it matters.
func TokenMiddleware(store *SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token != "" {
				if userID, err := store.Validate(token); err == nil {
					ctx := context.WithValue(r.Context(), userIDKey, userID)
					ctx = context.WithValue(ctx, tokenKey, token)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects requests that did not resolve to a user.
func RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserID(r.Context()) == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"code":"NOT_AUTHENTICATED","message":"Authentication required"}}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the session token from the Authorization header or
// the session cookie.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie("session"); err == nil {
		return c.Value
	}
	return ""
}

// UserID returns the authenticated user ID from the context, or "".
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// SessionToken returns the validated session token from the context, or "".
func SessionToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}
