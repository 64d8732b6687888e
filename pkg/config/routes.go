// pkg/config/routes.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceRoute describes one named downstream service. The set of names is
// closed (see router.ServiceID); the routes file only tunes the known ones.
type ServiceRoute struct {
	Name             string        `yaml:"name"`
	BaseURL          string        `yaml:"base_url"`
	Timeout          time.Duration `yaml:"-"`
	TimeoutSec       int           `yaml:"timeout_sec"`
	FailureThreshold int           `yaml:"failure_threshold"`
	CooldownSec      int           `yaml:"cooldown_sec"`
	CachedRoutes     []CachedRoute `yaml:"cached_routes"`
	EventRoutes      []EventRoute  `yaml:"event_routes"`
}

// CachedRoute declares a GET path prefix eligible for response caching.
type CachedRoute struct {
	Path   string `yaml:"path"`
	TTLSec int    `yaml:"ttl_sec"`
}

// EventRoute declares a mutating route whose success is broadcast to
// subscribed clients.
type EventRoute struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
	Topic  string `yaml:"topic"`
	Event  string `yaml:"event"`
}

type routesFile struct {
	Services []ServiceRoute `yaml:"services"`
}

// DefaultRoutes returns the built-in route table. Base URLs come from env so
// deployments without a routes file still resolve their downstreams.
func DefaultRoutes() []ServiceRoute {
	return []ServiceRoute{
		{
			Name:       "marketing",
			BaseURL:    env("SERVICE_MARKETING_URL", "http://marketing:8000"),
			TimeoutSec: 30,
			CachedRoutes: []CachedRoute{
				{Path: "/campaigns", TTLSec: 300},
				{Path: "/templates", TTLSec: 600},
			},
			EventRoutes: []EventRoute{
				{Method: "POST", Path: "/campaigns", Topic: "marketing", Event: "campaign.created"},
			},
		},
		{
			Name:       "crm",
			BaseURL:    env("SERVICE_CRM_URL", "http://crm:8000"),
			TimeoutSec: 30,
			CachedRoutes: []CachedRoute{
				{Path: "/contacts", TTLSec: 60},
				{Path: "/segments", TTLSec: 300},
			},
			EventRoutes: []EventRoute{
				{Method: "POST", Path: "/contacts", Topic: "crm-changes", Event: "contact.created"},
				{Method: "PUT", Path: "/contacts", Topic: "crm-changes", Event: "contact.updated"},
			},
		},
		{
			Name:       "analytics",
			BaseURL:    env("SERVICE_ANALYTICS_URL", "http://analytics:8000"),
			TimeoutSec: 30,
			CachedRoutes: []CachedRoute{
				{Path: "/reports", TTLSec: 600},
				{Path: "/dashboards", TTLSec: 300},
			},
		},
		{
			// AI content generation is slow; the breaker timeout reflects that.
			Name:       "content",
			BaseURL:    env("SERVICE_CONTENT_URL", "http://content:8000"),
			TimeoutSec: 120,
			EventRoutes: []EventRoute{
				{Method: "POST", Path: "/generate", Topic: "content", Event: "content.generated"},
			},
		},
	}
}

// LoadRoutes reads the routes file if configured, merging per-service
// overrides onto the defaults. Unknown service names in the file are an
// error: the service set is fixed at deploy time.
func LoadRoutes(path string) ([]ServiceRoute, error) {
	routes := DefaultRoutes()
	if path == "" {
		finalize(routes)
		return routes, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	var rf routesFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("parse routes file: %w", err)
	}
	byName := map[string]int{}
	for i, r := range routes {
		byName[r.Name] = i
	}
	for _, o := range rf.Services {
		i, ok := byName[strings.ToLower(o.Name)]
		if !ok {
			return nil, fmt.Errorf("routes file: unknown service %q", o.Name)
		}
		if o.BaseURL != "" {
			routes[i].BaseURL = o.BaseURL
		}
		if o.TimeoutSec > 0 {
			routes[i].TimeoutSec = o.TimeoutSec
		}
		if o.FailureThreshold > 0 {
			routes[i].FailureThreshold = o.FailureThreshold
		}
		if o.CooldownSec > 0 {
			routes[i].CooldownSec = o.CooldownSec
		}
		if len(o.CachedRoutes) > 0 {
			routes[i].CachedRoutes = o.CachedRoutes
		}
		if len(o.EventRoutes) > 0 {
			routes[i].EventRoutes = o.EventRoutes
		}
	}
	finalize(routes)
	return routes, nil
}

func finalize(routes []ServiceRoute) {
	for i := range routes {
		if routes[i].TimeoutSec <= 0 {
			routes[i].TimeoutSec = 30
		}
		routes[i].Timeout = time.Duration(routes[i].TimeoutSec) * time.Second
	}
}
