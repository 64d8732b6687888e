// cmd/gateway-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"opsgate/internal/auth"
	"opsgate/internal/breaker"
	"opsgate/internal/cache"
	"opsgate/internal/connectors"
	"opsgate/internal/events"
	"opsgate/internal/gateway"
	"opsgate/internal/ratelimit"
	"opsgate/internal/router"
	"opsgate/internal/vault"
	"opsgate/pkg/config"
	"opsgate/pkg/db"
	"opsgate/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	routes, err := config.LoadRoutes(cfg.RoutesFile)
	if err != nil {
		log.Fatalw("routes", "err", err)
	}

	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	// Stores: Postgres and Redis when configured, in-memory otherwise.
	var credStore vault.Store
	var userStore auth.UserStore
	if pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := vault.EnsureSchema(ctx, pool); err != nil {
			cancel()
			log.Fatalw("credential schema", "err", err)
		}
		if err := auth.EnsureUserSchema(ctx, pool); err != nil {
			cancel()
			log.Fatalw("user schema", "err", err)
		}
		cancel()
		credStore = vault.NewPostgresStore(pool)
		userStore = auth.NewPostgresUserStore(pool)
	} else {
		credStore = vault.NewMemoryStore()
		userStore = auth.NewMemoryUserStore()
	}

	var cacheStore cache.Store
	var counter ratelimit.Counter
	if rdb != nil {
		cacheStore = cache.NewRedisStore(rdb)
		counter = ratelimit.NewRedisCounter(rdb)
	} else {
		log.Warnw("redis not configured; cache and rate limits will be per-instance")
		cacheStore = cache.NewMemoryStore()
		counter = ratelimit.NewMemoryCounter()
	}

	v, err := vault.New(cfg.VaultKey, credStore, log)
	if err != nil {
		log.Fatalw("vault", "err", err)
	}

	issuer, err := auth.NewIssuer(cfg)
	if err != nil {
		log.Fatalw("issuer", "err", err)
	}
	verifier := auth.NewVerifier(cfg)

	limiter := ratelimit.New(counter, map[ratelimit.Tier]ratelimit.TierConfig{
		ratelimit.TierAuth:     {Limit: cfg.AuthRateLimit, Window: cfg.AuthRateWindow},
		ratelimit.TierWS:       {Limit: cfg.WSRateLimit, Window: cfg.WSRateWindow},
		ratelimit.TierStandard: {Limit: cfg.APIRateLimit, Window: cfg.APIRateWindow},
	}, log)

	services := router.BuildServices(routes, breaker.Options{
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
	})
	breakers := breaker.NewRegistry(breaker.Options{
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
	}, router.BreakerOptions(services), log)

	hub := events.NewHub(cfg.MaxConnections, cfg.MaxTopicsPerClient, log)
	cacheLayer := cache.NewLayer(cacheStore, log)
	rt := router.New(services, breakers, cacheLayer, hub, log)

	app := gateway.New(gateway.Deps{
		Log:      log,
		Cfg:      cfg,
		Verifier: verifier,
		Issuer:   issuer,
		Users:    userStore,
		Vault:    v,
		Router:   rt,
		Limiter:  limiter,
		Hub:      hub,
		Slack:    connectors.NewSlackClient(v, log),
		Gmail:    connectors.NewGmailClient(v, log),
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: app.Routes()}
	go func() {
		log.Infow("gateway-service listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("gateway-service stopped")
}
