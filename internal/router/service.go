// internal/router/service.go
package router

import (
	"strings"
	"time"

	"opsgate/internal/breaker"
	"opsgate/pkg/config"
)

// ServiceID names a downstream service. The set is closed and known at
// deploy time; unknown names are rejected at the router boundary instead of
// propagating an open-ended string through the system.
type ServiceID string

const (
	ServiceMarketing ServiceID = "marketing"
	ServiceCRM       ServiceID = "crm"
	ServiceAnalytics ServiceID = "analytics"
	ServiceContent   ServiceID = "content"
)

// ParseServiceID resolves a path segment to a known service.
func ParseServiceID(s string) (ServiceID, bool) {
	switch ServiceID(strings.ToLower(s)) {
	case ServiceMarketing:
		return ServiceMarketing, true
	case ServiceCRM:
		return ServiceCRM, true
	case ServiceAnalytics:
		return ServiceAnalytics, true
	case ServiceContent:
		return ServiceContent, true
	}
	return "", false
}

// Service is a downstream's resolved runtime configuration.
type Service struct {
	ID      ServiceID
	BaseURL string
	Timeout time.Duration

	cachedRoutes []config.CachedRoute
	eventRoutes  []config.EventRoute
	breakerOpts  breaker.Options
}

// cacheTTL returns the TTL for a GET path, or zero when the route is not
// cacheable. Longest declared prefix wins.
func (s Service) cacheTTL(path string) time.Duration {
	best := -1
	ttl := time.Duration(0)
	for _, cr := range s.cachedRoutes {
		if strings.HasPrefix(path, cr.Path) && len(cr.Path) > best {
			best = len(cr.Path)
			ttl = time.Duration(cr.TTLSec) * time.Second
		}
	}
	return ttl
}

// eventFor returns the broadcast topic/event bound to a mutating route.
func (s Service) eventFor(method, path string) (config.EventRoute, bool) {
	for _, er := range s.eventRoutes {
		if strings.EqualFold(er.Method, method) && strings.HasPrefix(path, er.Path) {
			return er, true
		}
	}
	return config.EventRoute{}, false
}

// BuildServices resolves the route table into the closed service set.
// Entries with names outside the set were already rejected by config.
func BuildServices(routes []config.ServiceRoute, defaults breaker.Options) map[ServiceID]Service {
	out := map[ServiceID]Service{}
	for _, r := range routes {
		id, ok := ParseServiceID(r.Name)
		if !ok {
			continue
		}
		timeout := r.Timeout
		if timeout <= 0 {
			// Route tables built directly from literals carry only the
			// seconds-granular yaml field; honor it rather than a zero
			// deadline that fails every call before it is attempted.
			timeout = time.Duration(r.TimeoutSec) * time.Second
		}
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		opts := defaults
		if r.FailureThreshold > 0 {
			opts.FailureThreshold = r.FailureThreshold
		}
		if r.CooldownSec > 0 {
			opts.Cooldown = time.Duration(r.CooldownSec) * time.Second
		}
		out[id] = Service{
			ID:           id,
			BaseURL:      strings.TrimRight(r.BaseURL, "/"),
			Timeout:      timeout,
			cachedRoutes: r.CachedRoutes,
			eventRoutes:  r.EventRoutes,
			breakerOpts:  opts,
		}
	}
	return out
}

// BreakerOptions exposes per-service breaker tuning for registry wiring.
func BreakerOptions(services map[ServiceID]Service) map[string]breaker.Options {
	out := map[string]breaker.Options{}
	for id, s := range services {
		out[string(id)] = s.breakerOpts
	}
	return out
}
