// pkg/middleware/ratelimit.go
package middleware

import (
	"net/http"
	"strings"

	"opsgate/internal/auth"
	"opsgate/internal/ratelimit"
	"opsgate/pkg/apierr"
)

// RateLimit applies one limiter tier. The subject key is the authenticated
// user when a principal is present, else the remote IP.
func RateLimit(l *ratelimit.Limiter, tier ratelimit.Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Allow(r.Context(), SubjectKey(r), tier)
			if !d.Allowed {
				apierr.WriteError(w, apierr.RateLimited(d.RetryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SubjectKey identifies the caller for rate accounting.
func SubjectKey(r *http.Request) string {
	if pr, ok := auth.PrincipalFrom(r.Context()); ok && pr.SubjectID != "" {
		return "user:" + pr.SubjectID
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}
