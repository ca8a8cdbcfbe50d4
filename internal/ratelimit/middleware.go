package ratelimit

import (
	"fmt"
	"net"
	"net/http"
)

// Middleware enforces the limiter's rules and sets rate limit headers
// on throttled responses. A nil limiter disables rate limiting.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			res, ok := l.Allow(ip, r.Method, r.URL.Path)
			if !ok {
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", res.Limit))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(res.RetryIn.Seconds())+1))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprint(w, `{"error":"rate limit exceeded"}`)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
