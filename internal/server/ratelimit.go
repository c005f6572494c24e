package server

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
)

// RateLimitMiddleware limits requests per client address through policy.
// Rejected requests get 429 with Retry-After. Policy errors let the request
// through.
func RateLimitMiddleware(policy ports.QualityPolicy, maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if policy == nil || maxRequests <= 0 || window <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := policy.CheckRequest(r.Context(), &ports.PolicyRequest{
				SessionID:   "http:" + clientAddr(r),
				MaxMessages: maxRequests,
				Window:      window,
			})
			if err != nil {
				AddError(r.Context(), err)
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allow {
				seconds := int(decision.RetryAfter.Round(time.Second) / time.Second)
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				AddLogField(r.Context(), "rate_limited", "true")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
