// internal/gateway/server.go
package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"opsgate/internal/ratelimit"
	"opsgate/pkg/middleware"
)

// Routes builds the full HTTP surface.
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(a.log))
	r.Use(middleware.CORS(a.cfg.AllowedOrigins))
	r.Use(middleware.Tracing())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// Token-issuing endpoints sit outside the verifier but under the tight
	// auth tier.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(a.limiter, ratelimit.TierAuth))
		r.Post("/api/v1/auth/register", a.handleRegister)
		r.Post("/api/v1/auth/login", a.handleLogin)
	})

	// WebSocket upgrades carry the token in the handshake message; only the
	// upgrade attempt itself is limited here.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(a.limiter, ratelimit.TierWS))
		r.Get("/ws", a.ws.ServeHTTP)
	})

	// Everything else: verified, tenant-enforced, rate-limited, routed.
	// The standard tier sits after Authn so accounting is per-user.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authn(a.verifier))
		r.Use(middleware.RateLimit(a.limiter, ratelimit.TierStandard))
		r.Use(middleware.Tenant())

		r.Route("/api/v1/integrations", func(r chi.Router) {
			r.Get("/{provider}/status", a.handleIntegrationStatus)
			r.Post("/{provider}/connect", a.handleIntegrationConnect)
			r.Delete("/{provider}", a.handleIntegrationDisconnect)
			r.Post("/slack/messages", a.handleSlackMessage)
			r.Post("/gmail/messages", a.handleGmailMessage)
		})

		r.HandleFunc("/api/v1/{service}/*", a.handleProxy)
		r.HandleFunc("/api/v2/{service}/*", a.handleProxy)
	})

	return r
}
