// internal/cache/cache.go

// Package cache is the response cache for idempotent downstream routes.
// Caching is a pure optimization: any store failure is absorbed and the
// request proceeds uncached. Invalidation is TTL-only.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	hits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsgate_cache_hits_total",
		Help: "Response cache hits.",
	})
	misses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsgate_cache_misses_total",
		Help: "Response cache misses.",
	})
)

// Store is the TTL key-value backend. Get returns ok=false on miss.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Layer wraps a Store with tenant-partitioned keys and fail-open semantics.
type Layer struct {
	store Store
	log   *zap.SugaredLogger
}

func NewLayer(store Store, log *zap.SugaredLogger) *Layer {
	return &Layer{store: store, log: log}
}

// Key derives the deterministic cache key. Query params are sorted so
// equivalent requests collide regardless of parameter order; the tenant is
// part of the hash so no tenant can read another's entries.
func Key(tenantID, method, path string, query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(tenantID)
	sb.WriteByte('|')
	sb.WriteString(strings.ToUpper(method))
	sb.WriteByte('|')
	sb.WriteString(path)
	for _, k := range keys {
		vals := append([]string(nil), query[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			sb.WriteByte('|')
			sb.WriteString(k)
			sb.WriteByte('=')
			sb.WriteString(v)
		}
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Entries are stored as "<content-type>\n<body>" so a hit can restore the
// downstream's original Content-Type.

// Get returns the cached response, or ok=false on miss, store error or an
// entry that does not decode.
func (l *Layer) Get(ctx context.Context, tenantID, method, path string, query url.Values) (body []byte, contentType string, ok bool) {
	v, found, err := l.store.Get(ctx, Key(tenantID, method, path, query))
	if err != nil {
		l.log.Warnw("cache get failed, skipping", "err", err)
		misses.Inc()
		return nil, "", false
	}
	if !found {
		misses.Inc()
		return nil, "", false
	}
	i := bytes.IndexByte(v, '\n')
	if i < 0 {
		misses.Inc()
		return nil, "", false
	}
	hits.Inc()
	return v[i+1:], string(v[:i]), true
}

// Put writes through. A full entry or nothing: store errors only skip
// caching for this call.
func (l *Layer) Put(ctx context.Context, tenantID, method, path string, query url.Values, contentType string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	entry := make([]byte, 0, len(contentType)+1+len(value))
	entry = append(entry, contentType...)
	entry = append(entry, '\n')
	entry = append(entry, value...)
	if err := l.store.Set(ctx, Key(tenantID, method, path, query), entry, ttl); err != nil {
		l.log.Warnw("cache put failed, skipping", "err", err)
	}
}
