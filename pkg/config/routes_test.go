package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRoutes(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func routeByName(t *testing.T, routes []ServiceRoute, name string) ServiceRoute {
	t.Helper()
	for _, r := range routes {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("route %q not found", name)
	return ServiceRoute{}
}

func TestLoadRoutesDefaults(t *testing.T) {
	routes, err := LoadRoutes("")
	require.NoError(t, err)
	require.Len(t, routes, 4)

	crm := routeByName(t, routes, "crm")
	assert.Equal(t, 30*time.Second, crm.Timeout)
	assert.NotEmpty(t, crm.CachedRoutes)

	content := routeByName(t, routes, "content")
	assert.Equal(t, 120*time.Second, content.Timeout)
}

func TestLoadRoutesMergesOverrides(t *testing.T) {
	p := writeRoutes(t, `
services:
  - name: crm
    base_url: http://crm.internal:9000
    timeout_sec: 45
    failure_threshold: 3
    cached_routes:
      - path: /contacts
        ttl_sec: 10
`)
	routes, err := LoadRoutes(p)
	require.NoError(t, err)

	crm := routeByName(t, routes, "crm")
	assert.Equal(t, "http://crm.internal:9000", crm.BaseURL)
	assert.Equal(t, 45*time.Second, crm.Timeout)
	assert.Equal(t, 3, crm.FailureThreshold)
	require.Len(t, crm.CachedRoutes, 1)
	assert.Equal(t, 10, crm.CachedRoutes[0].TTLSec)
	// Event routes untouched by a cache-only override.
	assert.NotEmpty(t, crm.EventRoutes)

	// Other services keep their defaults.
	marketing := routeByName(t, routes, "marketing")
	assert.Equal(t, 30*time.Second, marketing.Timeout)
}

func TestLoadRoutesRejectsUnknownService(t *testing.T) {
	p := writeRoutes(t, `
services:
  - name: billing
    base_url: http://billing:8000
`)
	_, err := LoadRoutes(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown service")
}

func TestLoadRoutesRejectsBadYAML(t *testing.T) {
	p := writeRoutes(t, "services: [not: valid: yaml:")
	_, err := LoadRoutes(p)
	require.Error(t, err)
}

func TestLoadRoutesMissingFile(t *testing.T) {
	_, err := LoadRoutes(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
