// internal/gateway/handlers_proxy.go
package gateway

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"opsgate/internal/auth"
	"opsgate/internal/router"
	"opsgate/pkg/apierr"
	"opsgate/pkg/middleware"
)

// maxProxyBody bounds buffered request bodies.
const maxProxyBody = 10 << 20

// handleProxy forwards /api/v{1,2}/{service}/* to the named downstream
// through the service router.
func (a *App) handleProxy(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "service")
	svc, ok := router.ParseServiceID(name)
	if !ok {
		apierr.WriteError(w, apierr.UnknownService(name))
		return
	}

	pr, _ := auth.PrincipalFrom(r.Context())
	tenantID := middleware.TenantFrom(r.Context())

	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(io.LimitReader(r.Body, maxProxyBody))
		if err != nil {
			apierr.WriteError(w, apierr.BadRequest("unreadable body"))
			return
		}
		body = b
	}

	rest := "/" + chi.URLParam(r, "*")

	resp, err := a.router.Route(r.Context(), router.Request{
		Principal: pr,
		TenantID:  tenantID,
		Service:   svc,
		Method:    r.Method,
		Path:      rest,
		Query:     r.URL.Query(),
		Header:    r.Header,
		Body:      body,
	})
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	// Downstream responses pass through verbatim; the envelope is for
	// gateway-owned endpoints only.
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if resp.Cached {
		w.Header().Set("X-Cache", "HIT")
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
