// internal/gateway/app.go

// Package gateway assembles the request-routing core behind one chi router:
// auth verification, tenant enforcement, rate limiting, the service router,
// the token vault surface and the event broadcaster.
package gateway

import (
	"go.uber.org/zap"

	"opsgate/internal/auth"
	"opsgate/internal/connectors"
	"opsgate/internal/events"
	"opsgate/internal/ratelimit"
	"opsgate/internal/router"
	"opsgate/internal/vault"
	"opsgate/pkg/config"
)

// App is the gateway application container: shared deps and config only,
// handlers hang off it as methods. Request-scoped work uses context.
type App struct {
	log      *zap.SugaredLogger
	cfg      config.Config
	verifier *auth.Verifier
	issuer   *auth.Issuer
	users    auth.UserStore
	vault    *vault.Vault
	router   *router.Router
	limiter  *ratelimit.Limiter
	hub      *events.Hub
	ws       *events.Handler
	slack    *connectors.SlackClient
	gmail    *connectors.GmailClient
}

type Deps struct {
	Log      *zap.SugaredLogger
	Cfg      config.Config
	Verifier *auth.Verifier
	Issuer   *auth.Issuer
	Users    auth.UserStore
	Vault    *vault.Vault
	Router   *router.Router
	Limiter  *ratelimit.Limiter
	Hub      *events.Hub
	Slack    *connectors.SlackClient
	Gmail    *connectors.GmailClient
}

func New(d Deps) *App {
	return &App{
		log:      d.Log,
		cfg:      d.Cfg,
		verifier: d.Verifier,
		issuer:   d.Issuer,
		users:    d.Users,
		vault:    d.Vault,
		router:   d.Router,
		limiter:  d.Limiter,
		hub:      d.Hub,
		ws:       events.NewHandler(d.Hub, d.Verifier, d.Log),
		slack:    d.Slack,
		gmail:    d.Gmail,
	}
}
