// pkg/middleware/tenant.go
package middleware

import (
	"context"
	"net/http"
	"strings"

	"opsgate/internal/auth"
	"opsgate/pkg/apierr"
)

type ctxTenantKey struct{}

// Tenant resolves the request tenant: the optional X-Tenant-Id header must
// agree with the principal's tenant claim; absent a header the claim wins.
// A principal with no tenant at all is rejected: every downstream call,
// cache entry and rate counter is partitioned by tenant.
func Tenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pr, ok := auth.PrincipalFrom(r.Context())
			if !ok {
				apierr.WriteError(w, apierr.AuthInvalid())
				return
			}
			tenantID := pr.TenantID
			if h := strings.TrimSpace(r.Header.Get("X-Tenant-Id")); h != "" {
				if tenantID != "" && h != tenantID {
					apierr.WriteError(w, apierr.Forbidden("tenant mismatch"))
					return
				}
				tenantID = h
			}
			if tenantID == "" {
				apierr.WriteError(w, apierr.Forbidden("no tenant"))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxTenantKey{}, tenantID)))
		})
	}
}

// TenantFrom returns the resolved tenant id, or "".
func TenantFrom(ctx context.Context) string {
	if v := ctx.Value(ctxTenantKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
