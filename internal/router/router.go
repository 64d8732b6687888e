// internal/router/router.go

// Package router is the orchestration point for downstream calls: cache
// check first, then the circuit breaker around the actual HTTP call,
// write-through on success, and an optional broadcast for mutating routes.
// Rate limiting happens at the HTTP edge before a request reaches Route.
package router

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"opsgate/internal/auth"
	"opsgate/internal/breaker"
	"opsgate/internal/cache"
	"opsgate/internal/events"
	"opsgate/pkg/apierr"
)

// forwarded request headers; everything else from the client is dropped.
var forwardHeaders = []string{"Authorization", "Content-Type", "Accept", "X-Request-Id"}

// Response is the normalized downstream answer.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Cached bool
}

// Request is one routed call, already authenticated, tenant-resolved and
// rate-accounted at the edge.
type Request struct {
	Principal auth.Principal
	TenantID  string
	Service   ServiceID
	Method    string
	Path      string // path below the service prefix, e.g. /contacts/42
	Query     url.Values
	Header    http.Header
	Body      []byte
}

type Router struct {
	services map[ServiceID]Service
	breakers *breaker.Registry
	cache    *cache.Layer
	hub      *events.Hub
	client   *http.Client
	log      *zap.SugaredLogger
}

func New(
	services map[ServiceID]Service,
	breakers *breaker.Registry,
	cacheLayer *cache.Layer,
	hub *events.Hub,
	log *zap.SugaredLogger,
) *Router {
	return &Router{
		services: services,
		breakers: breakers,
		cache:    cacheLayer,
		hub:      hub,
		// Per-call deadlines come from the request context; the client
		// itself imposes none.
		client: &http.Client{},
		log:    log,
	}
}

// Route proxies one request to its downstream service.
func (rt *Router) Route(ctx context.Context, req Request) (Response, error) {
	svc, ok := rt.services[req.Service]
	if !ok {
		return Response{}, apierr.UnknownService(string(req.Service))
	}

	cacheTTL := svc.cacheTTL(req.Path)
	cacheable := req.Method == http.MethodGet && cacheTTL > 0
	if cacheable {
		if body, ct, ok := rt.cache.Get(ctx, req.TenantID, req.Method, req.Path, req.Query); ok {
			hdr := http.Header{}
			if ct != "" {
				hdr.Set("Content-Type", ct)
			}
			return Response{
				Status: http.StatusOK,
				Header: hdr,
				Body:   body,
				Cached: true,
			}, nil
		}
	}

	var resp Response
	err := rt.breakers.Execute(ctx, string(req.Service), func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, svc.Timeout)
		defer cancel()
		r, err := rt.call(ctx, svc, req)
		if err != nil {
			return err
		}
		resp = r
		// Downstream 5xx counts against the breaker like a transport failure.
		if resp.Status >= 500 {
			return errDownstream5xx
		}
		return nil
	})

	switch {
	case errors.Is(err, breaker.ErrCircuitOpen):
		return Response{}, apierr.ServiceUnavailable()
	case errors.Is(err, errDownstream5xx):
		rt.log.Warnw("downstream 5xx", "service", req.Service, "status", resp.Status, "path", req.Path)
		return Response{}, apierr.BadGateway()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		rt.log.Warnw("downstream timeout", "service", req.Service, "path", req.Path)
		return Response{}, apierr.ServiceUnavailable()
	case err != nil:
		rt.log.Warnw("downstream unreachable", "service", req.Service, "err", err)
		return Response{}, apierr.BadGateway()
	}

	// 4xx passes through largely as-is: the downstream said no, the caller
	// should hear it.
	if resp.Status >= 200 && resp.Status < 300 {
		if cacheable {
			rt.cache.Put(ctx, req.TenantID, req.Method, req.Path, req.Query,
				resp.Header.Get("Content-Type"), resp.Body, cacheTTL)
		}
		if er, ok := svc.eventFor(req.Method, req.Path); ok && rt.hub != nil {
			rt.hub.Publish(req.TenantID, er.Topic, er.Event, map[string]any{
				"service": string(req.Service),
				"path":    req.Path,
				"status":  resp.Status,
			})
		}
	}
	return resp, nil
}

var errDownstream5xx = errors.New("downstream 5xx")

func (rt *Router) call(ctx context.Context, svc Service, req Request) (Response, error) {
	u := svc.BaseURL + req.Path
	if enc := req.Query.Encode(); enc != "" {
		u += "?" + enc
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hr, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return Response{}, err
	}
	for _, h := range forwardHeaders {
		if v := req.Header.Get(h); v != "" {
			hr.Header.Set(h, v)
		}
	}
	hr.Header.Set("X-Tenant-Id", req.TenantID)

	res, err := rt.client.Do(hr)
	if err != nil {
		// Unwrap so context errors are recognizable upstream.
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{}, err
	}
	return Response{Status: res.StatusCode, Header: res.Header.Clone(), Body: b}, nil
}
