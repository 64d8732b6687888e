// internal/breaker/registry.go
package breaker

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var fastFails = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "opsgate_breaker_fast_fails_total",
	Help: "Calls rejected without a network attempt because the circuit was open.",
}, []string{"service"})

var failures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "opsgate_breaker_failures_total",
	Help: "Downstream call failures recorded by the breaker.",
}, []string{"service"})

// Registry holds one breaker per downstream-service name. Breakers are
// created lazily; the registry lock covers only map access, never a breaker's
// own state, so traffic to one service cannot serialize another's.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker

	defaults   Options
	perService map[string]Options
	log        *zap.SugaredLogger
}

func NewRegistry(defaults Options, perService map[string]Options, log *zap.SugaredLogger) *Registry {
	return &Registry{
		breakers:   map[string]*Breaker{},
		defaults:   defaults.withDefaults(),
		perService: perService,
		log:        log,
	}
}

func (r *Registry) breaker(service string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[service]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[service]; ok {
		return b
	}
	opts := r.defaults
	if o, ok := r.perService[service]; ok {
		if o.FailureThreshold > 0 {
			opts.FailureThreshold = o.FailureThreshold
		}
		if o.Cooldown > 0 {
			opts.Cooldown = o.Cooldown
		}
	}
	b = New(opts)
	r.breakers[service] = b
	return b
}

// Execute runs fn under the breaker for service.
func (r *Registry) Execute(ctx context.Context, service string, fn func(context.Context) error) error {
	b := r.breaker(service)
	before := b.State()
	err := b.Execute(ctx, fn)
	switch {
	case err == ErrCircuitOpen:
		fastFails.WithLabelValues(service).Inc()
	case err != nil:
		failures.WithLabelValues(service).Inc()
	}
	if after := b.State(); after != before {
		r.log.Warnw("breaker transition", "service", service, "from", before.String(), "to", after.String())
	}
	return err
}

// State reports the breaker state for a service (Closed if none exists yet).
func (r *Registry) State(service string) State {
	r.mu.RLock()
	b, ok := r.breakers[service]
	r.mu.RUnlock()
	if !ok {
		return Closed
	}
	return b.State()
}
