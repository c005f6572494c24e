package server

import (
	"context"
	"net/http"
	"time"
)

// RequestTimeout cancels the request context after d. Handlers stop only if
// they watch ctx.Done(). A non-positive d leaves requests unbounded.
func RequestTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
