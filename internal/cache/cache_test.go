package cache

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func TestKeyIsTenantPartitioned(t *testing.T) {
	q := url.Values{"page": {"1"}}
	k1 := Key("tenant-a", "GET", "/contacts", q)
	k2 := Key("tenant-b", "GET", "/contacts", q)
	assert.NotEqual(t, k1, k2)
}

func TestKeyIgnoresQueryOrder(t *testing.T) {
	k1 := Key("t", "GET", "/reports", url.Values{"a": {"1"}, "b": {"2"}})
	k2 := Key("t", "GET", "/reports", url.Values{"b": {"2"}, "a": {"1"}})
	assert.Equal(t, k1, k2)
}

func TestKeyDistinguishesPathAndMethod(t *testing.T) {
	assert.NotEqual(t,
		Key("t", "GET", "/a", nil),
		Key("t", "GET", "/b", nil))
	assert.NotEqual(t,
		Key("t", "GET", "/a", nil),
		Key("t", "HEAD", "/a", nil))
}

func TestLayerTenantIsolation(t *testing.T) {
	l := NewLayer(NewMemoryStore(), testLogger())
	ctx := context.Background()

	l.Put(ctx, "tenant-a", "GET", "/contacts", nil, "application/json", []byte(`["alice"]`), time.Minute)

	_, _, ok := l.Get(ctx, "tenant-b", "GET", "/contacts", nil)
	assert.False(t, ok, "tenant B must never see tenant A's entry")

	v, ct, ok := l.Get(ctx, "tenant-a", "GET", "/contacts", nil)
	require.True(t, ok)
	assert.Equal(t, `["alice"]`, string(v))
	assert.Equal(t, "application/json", ct)
}

func TestLayerTTLExpiry(t *testing.T) {
	now := time.Now()
	store := NewMemoryStoreWithClock(func() time.Time { return now })
	l := NewLayer(store, testLogger())
	ctx := context.Background()

	l.Put(ctx, "t", "GET", "/reports", nil, "application/json", []byte("data"), 300*time.Second)

	now = now.Add(299 * time.Second)
	_, _, ok := l.Get(ctx, "t", "GET", "/reports", nil)
	assert.True(t, ok, "entry still fresh at t=299s")

	now = now.Add(2 * time.Second)
	_, _, ok = l.Get(ctx, "t", "GET", "/reports", nil)
	assert.False(t, ok, "entry expired at t=301s")
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store down")
}
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("store down")
}

func TestLayerFailsOpen(t *testing.T) {
	l := NewLayer(brokenStore{}, testLogger())
	ctx := context.Background()

	// Neither call may panic or surface the store error.
	_, _, ok := l.Get(ctx, "t", "GET", "/x", nil)
	assert.False(t, ok)
	l.Put(ctx, "t", "GET", "/x", nil, "text/plain", []byte("v"), time.Minute)
}

func TestLayerSkipsZeroTTL(t *testing.T) {
	l := NewLayer(NewMemoryStore(), testLogger())
	ctx := context.Background()
	l.Put(ctx, "t", "GET", "/x", nil, "text/plain", []byte("v"), 0)
	_, _, ok := l.Get(ctx, "t", "GET", "/x", nil)
	assert.False(t, ok)
}
