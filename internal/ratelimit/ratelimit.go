// internal/ratelimit/ratelimit.go

// Package ratelimit enforces per-subject request quotas in three tiers:
// authentication endpoints, WebSocket upgrades, and general API traffic.
// Counters are windowed per {subjectKey}_{tier}_{windowStart} and live in the
// shared counter store, so limits hold across gateway replicas as long as the
// store supports atomic increment-with-TTL.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

type Tier string

const (
	TierAuth     Tier = "auth"
	TierWS       Tier = "ws"
	TierStandard Tier = "standard"
)

var rejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "opsgate_ratelimit_rejections_total",
	Help: "Requests rejected by the rate limiter.",
}, []string{"tier"})

// TierConfig is the quota for one tier: Limit requests per Window.
type TierConfig struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of an Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Counter is the windowed counter backend. Incr atomically increments the
// key and sets its TTL on first write, returning the new count.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type Limiter struct {
	counter Counter
	tiers   map[Tier]TierConfig
	log     *zap.SugaredLogger
	now     func() time.Time
}

func New(counter Counter, tiers map[Tier]TierConfig, log *zap.SugaredLogger) *Limiter {
	return &Limiter{counter: counter, tiers: tiers, log: log, now: time.Now}
}

// NewWithClock injects a clock for window tests.
func NewWithClock(counter Counter, tiers map[Tier]TierConfig, log *zap.SugaredLogger, now func() time.Time) *Limiter {
	return &Limiter{counter: counter, tiers: tiers, log: log, now: now}
}

// Allow records one request for subjectKey in tier and decides whether it is
// within quota. Counter-store failures fail open with a warning: one lost
// window beats rejecting all traffic during a store incident.
func (l *Limiter) Allow(ctx context.Context, subjectKey string, tier Tier) Decision {
	cfg, ok := l.tiers[tier]
	if !ok || cfg.Limit <= 0 {
		return Decision{Allowed: true}
	}
	now := l.now()
	windowStart := now.Truncate(cfg.Window)
	key := fmt.Sprintf("ratelimit:%s_%s_%d", subjectKey, tier, windowStart.Unix())

	// TTL covers the remainder of the window plus slack for clock skew.
	n, err := l.counter.Incr(ctx, key, cfg.Window+time.Second)
	if err != nil {
		l.log.Warnw("rate counter unavailable, allowing", "tier", tier, "err", err)
		return Decision{Allowed: true}
	}
	if n > int64(cfg.Limit) {
		rejections.WithLabelValues(string(tier)).Inc()
		return Decision{
			Allowed:    false,
			RetryAfter: windowStart.Add(cfg.Window).Sub(now),
		}
	}
	return Decision{Allowed: true, Remaining: cfg.Limit - int(n)}
}
