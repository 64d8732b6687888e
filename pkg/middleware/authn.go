// pkg/middleware/authn.go
package middleware

import (
	"context"
	"net/http"
	"strings"

	"opsgate/internal/auth"
	"opsgate/pkg/apierr"
)

// Verifier matches auth.Verifier; declared here so tests can stub it.
type Verifier interface {
	Verify(ctx context.Context, raw string) (auth.Principal, error)
}

// Authn extracts the bearer token, verifies it under both schemes, and puts
// the resulting Principal in context. Any failure is a bare 401.
func Authn(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				apierr.WriteError(w, apierr.AuthInvalid())
				return
			}
			pr, err := v.Verify(r.Context(), raw)
			if err != nil {
				apierr.WriteError(w, apierr.AuthInvalid())
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), pr)))
		})
	}
}

// BearerToken pulls the token out of the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(authz[len("Bearer "):])
	return tok, tok != ""
}
