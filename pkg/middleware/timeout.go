package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout bounds the request context with timeout. Handlers pass that context
// into every blocking call, so a slow dependency is abandoned at the
// deadline rather than whenever the client disconnects.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if timeout <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
