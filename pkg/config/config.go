// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// Scheme A: issuer-signed identity tokens
	Issuer    string
	Audience  string
	JWKSURL   string
	ClockSkew time.Duration

	// Scheme B: locally-issued session tokens
	SessionSecret string
	SessionIssuer string
	SessionTTL    time.Duration

	// Token vault key material. Required before the vault accepts any call.
	VaultKey string

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string

	// Rate-limit tiers: count per window
	AuthRateLimit  int
	AuthRateWindow time.Duration
	WSRateLimit    int
	WSRateWindow   time.Duration
	APIRateLimit   int
	APIRateWindow  time.Duration

	// Circuit breaker defaults (per-service overrides live in the routes file)
	BreakerFailureThreshold int
	BreakerCooldown         time.Duration

	// Broadcaster caps
	MaxConnections     int
	MaxTopicsPerClient int

	RoutesFile     string
	AllowedOrigins []string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:      env("OPSGATE_ENV", "dev"),
		HTTPAddr: env("OPSGATE_HTTP_ADDR", ":8080"),

		Issuer:    env("OIDC_ISSUER", ""),
		Audience:  env("OIDC_AUDIENCE", "opsgate"),
		JWKSURL:   env("JWKS_URL", ""),
		ClockSkew: envDur("AUTH_CLOCK_SKEW_SEC", 60) * time.Second,

		SessionSecret: env("SESSION_SECRET", ""),
		SessionIssuer: env("SESSION_ISSUER", "opsgate-local"),
		SessionTTL:    envDur("SESSION_TTL_MIN", 60) * time.Minute,

		VaultKey: env("VAULT_ENCRYPTION_KEY", ""),

		RedisURL:    env("REDIS_URL", ""),
		DatabaseURL: env("DATABASE_URL", ""),

		AuthRateLimit:  envInt("RATE_LIMIT_AUTH", 10),
		AuthRateWindow: envDur("RATE_WINDOW_AUTH_SEC", 60) * time.Second,
		WSRateLimit:    envInt("RATE_LIMIT_WS", 20),
		WSRateWindow:   envDur("RATE_WINDOW_WS_SEC", 60) * time.Second,

		BreakerFailureThreshold: envInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerCooldown:         envDur("BREAKER_COOLDOWN_SEC", 30) * time.Second,

		MaxConnections:     envInt("WS_MAX_CONNECTIONS", 1000),
		MaxTopicsPerClient: envInt("WS_MAX_TOPICS", 16),

		RoutesFile:     env("OPSGATE_ROUTES_FILE", ""),
		AllowedOrigins: envList("ALLOWED_ORIGINS", "*"),
	}

	// General traffic limits are looser outside prod to ease local bring-up.
	if cfg.Env == "prod" {
		cfg.APIRateLimit = envInt("RATE_LIMIT_API", 100)
		cfg.APIRateWindow = envDur("RATE_WINDOW_API_SEC", 900) * time.Second
	} else {
		cfg.APIRateLimit = envInt("RATE_LIMIT_API", 1000)
		cfg.APIRateWindow = envDur("RATE_WINDOW_API_SEC", 60) * time.Second
	}

	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set, using in-memory stores for dev")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i)
		}
	}
	return time.Duration(def)
}

func envList(k, def string) []string {
	v := os.Getenv(k)
	if v == "" {
		v = def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
