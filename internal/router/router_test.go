package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opsgate/internal/breaker"
	"opsgate/internal/cache"
	"opsgate/internal/events"
	"opsgate/pkg/apierr"
	"opsgate/pkg/config"
)

func testLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

type fixture struct {
	router *Router
	hub    *events.Hub
	calls  *int64
}

func newFixture(t *testing.T, handler http.HandlerFunc) (*fixture, *httptest.Server) {
	t.Helper()
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	services := BuildServices([]config.ServiceRoute{{
		Name:       "crm",
		BaseURL:    srv.URL,
		TimeoutSec: 5,
		CachedRoutes: []config.CachedRoute{
			{Path: "/contacts", TTLSec: 60},
		},
		EventRoutes: []config.EventRoute{
			{Method: "POST", Path: "/contacts", Topic: "crm-changes", Event: "contact.created"},
		},
	}}, breaker.Options{FailureThreshold: 5, Cooldown: 30 * time.Second})

	log := testLogger()
	hub := events.NewHub(10, 4, log)
	breakers := breaker.NewRegistry(breaker.Options{FailureThreshold: 5, Cooldown: 30 * time.Second},
		BreakerOptions(services), log)
	rt := New(services, breakers, cache.NewLayer(cache.NewMemoryStore(), log), hub, log)
	return &fixture{router: rt, hub: hub, calls: &calls}, srv
}

func crmRequest(method, path string, query url.Values) Request {
	return Request{
		TenantID: "tenant-1",
		Service:  ServiceCRM,
		Method:   method,
		Path:     path,
		Query:    query,
		Header:   http.Header{"Authorization": []string{"Bearer tok"}},
	}
}

func TestParseServiceID(t *testing.T) {
	for _, name := range []string{"marketing", "crm", "analytics", "content", "CRM"} {
		_, ok := ParseServiceID(name)
		assert.True(t, ok, name)
	}
	_, ok := ParseServiceID("billing")
	assert.False(t, ok)
}

func TestRouteProxiesSuccess(t *testing.T) {
	f, _ := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tenant-1", r.Header.Get("X-Tenant-Id"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	resp, err := f.router.Route(context.Background(), crmRequest("GET", "/segments", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
	assert.False(t, resp.Cached)
}

func TestRoutePassesThrough4xx(t *testing.T) {
	f, _ := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no such contact"}`))
	})

	resp, err := f.router.Route(context.Background(), crmRequest("GET", "/segments", nil))
	require.NoError(t, err, "a downstream 4xx is a response, not a gateway error")
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Contains(t, string(resp.Body), "no such contact")
}

func TestRouteCacheHitSkipsDownstream(t *testing.T) {
	f, _ := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`["alice"]`))
	})
	ctx := context.Background()

	r1, err := f.router.Route(ctx, crmRequest("GET", "/contacts", nil))
	require.NoError(t, err)
	assert.False(t, r1.Cached)

	r2, err := f.router.Route(ctx, crmRequest("GET", "/contacts", nil))
	require.NoError(t, err)
	assert.True(t, r2.Cached)
	assert.Equal(t, `["alice"]`, string(r2.Body))
	assert.Equal(t, int64(1), atomic.LoadInt64(f.calls), "second call must be served from cache")
}

func TestRouteCacheHitKeepsContentType(t *testing.T) {
	f, _ := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write([]byte("id,name\n1,alice\n"))
	})
	ctx := context.Background()

	_, err := f.router.Route(ctx, crmRequest("GET", "/contacts", nil))
	require.NoError(t, err)

	r2, err := f.router.Route(ctx, crmRequest("GET", "/contacts", nil))
	require.NoError(t, err)
	require.True(t, r2.Cached)
	assert.Equal(t, "text/csv; charset=utf-8", r2.Header.Get("Content-Type"))
	assert.Equal(t, "id,name\n1,alice\n", string(r2.Body))
}

func TestRouteCacheIsTenantScoped(t *testing.T) {
	f, _ := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`data`))
	})
	ctx := context.Background()

	_, err := f.router.Route(ctx, crmRequest("GET", "/contacts", nil))
	require.NoError(t, err)

	other := crmRequest("GET", "/contacts", nil)
	other.TenantID = "tenant-2"
	r2, err := f.router.Route(ctx, other)
	require.NoError(t, err)
	assert.False(t, r2.Cached, "tenant-2 must not see tenant-1's cache entry")
	assert.Equal(t, int64(2), atomic.LoadInt64(f.calls))
}

func TestRouteUncachedMethodSkipsCache(t *testing.T) {
	f, _ := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	ctx := context.Background()

	_, err := f.router.Route(ctx, crmRequest("POST", "/contacts", nil))
	require.NoError(t, err)
	_, err = f.router.Route(ctx, crmRequest("POST", "/contacts", nil))
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(f.calls))
}

func TestRouteBreakerOpensOn5xx(t *testing.T) {
	f, _ := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.router.Route(ctx, crmRequest("GET", "/segments", nil))
		var e *apierr.E
		require.ErrorAs(t, err, &e)
		assert.Equal(t, apierr.CodeBadGateway, e.Code)
	}
	require.Equal(t, int64(5), atomic.LoadInt64(f.calls))

	// Circuit open: no further network attempts.
	_, err := f.router.Route(ctx, crmRequest("GET", "/segments", nil))
	var e *apierr.E
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apierr.CodeServiceUnavailable, e.Code)
	assert.Equal(t, int64(5), atomic.LoadInt64(f.calls))
}

func TestRouteUnknownService(t *testing.T) {
	f, _ := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {})
	req := crmRequest("GET", "/x", nil)
	req.Service = ServiceID("billing")
	_, err := f.router.Route(context.Background(), req)
	var e *apierr.E
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apierr.CodeUnknownService, e.Code)
}

func TestRouteTimeoutMapsToServiceUnavailable(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	services := BuildServices([]config.ServiceRoute{{
		Name: "crm", BaseURL: srv.URL, TimeoutSec: 1,
	}}, breaker.Options{})
	// The route-table timeout is seconds-granular; tighten via context.
	log := testLogger()
	rt := New(services, breaker.NewRegistry(breaker.Options{}, nil, log),
		cache.NewLayer(cache.NewMemoryStore(), log), nil, log)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := rt.Route(ctx, crmRequest("GET", "/segments", nil))
	var e *apierr.E
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apierr.CodeServiceUnavailable, e.Code)
}

func TestRouteUnreachableDownstream(t *testing.T) {
	services := BuildServices([]config.ServiceRoute{{
		Name: "crm", BaseURL: "http://127.0.0.1:1", TimeoutSec: 1,
	}}, breaker.Options{})
	log := testLogger()
	rt := New(services, breaker.NewRegistry(breaker.Options{}, nil, log),
		cache.NewLayer(cache.NewMemoryStore(), log), nil, log)

	_, err := rt.Route(context.Background(), crmRequest("GET", "/segments", nil))
	var e *apierr.E
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apierr.CodeBadGateway, e.Code)
}

func TestRoutePublishesEventOnMutation(t *testing.T) {
	f, _ := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	sub := f.hub.Subscribe("tenant-1", "crm-changes")
	require.NotNil(t, sub)
	defer sub.Close()

	// A subscriber in another tenant must hear nothing.
	other := f.hub.Subscribe("tenant-2", "crm-changes")
	require.NotNil(t, other)
	defer other.Close()

	_, err := f.router.Route(context.Background(), crmRequest("POST", "/contacts", nil))
	require.NoError(t, err)

	select {
	case m := <-sub.C:
		assert.Equal(t, "contact.created", m.Event)
		assert.Equal(t, "crm-changes", m.Topic)
	case <-time.After(time.Second):
		t.Fatal("expected a crm-changes event")
	}
	select {
	case <-other.C:
		t.Fatal("event leaked across tenants")
	case <-time.After(50 * time.Millisecond):
	}
}
