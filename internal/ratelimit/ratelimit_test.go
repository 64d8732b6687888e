package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func newTestLimiter(now *time.Time, tiers map[Tier]TierConfig) *Limiter {
	clock := func() time.Time { return *now }
	return NewWithClock(NewMemoryCounterWithClock(clock), tiers, testLogger(), clock)
}

func TestLimiterRejectsOverQuota(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newTestLimiter(&now, map[Tier]TierConfig{
		TierAuth: {Limit: 10, Window: time.Minute},
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d := l.Allow(ctx, "user:u1", TierAuth)
		require.True(t, d.Allowed, "request %d should pass", i+1)
	}
	d := l.Allow(ctx, "user:u1", TierAuth)
	require.False(t, d.Allowed, "11th request in the window must be rejected")
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
}

func TestLimiterNewWindowResets(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).Truncate(time.Minute)
	l := newTestLimiter(&now, map[Tier]TierConfig{
		TierAuth: {Limit: 2, Window: time.Minute},
	})
	ctx := context.Background()

	require.True(t, l.Allow(ctx, "k", TierAuth).Allowed)
	require.True(t, l.Allow(ctx, "k", TierAuth).Allowed)
	require.False(t, l.Allow(ctx, "k", TierAuth).Allowed)

	now = now.Add(time.Minute)
	assert.True(t, l.Allow(ctx, "k", TierAuth).Allowed, "first request of the next window succeeds")
}

func TestLimiterSubjectsAreIndependent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newTestLimiter(&now, map[Tier]TierConfig{
		TierStandard: {Limit: 1, Window: time.Minute},
	})
	ctx := context.Background()

	require.True(t, l.Allow(ctx, "user:a", TierStandard).Allowed)
	require.False(t, l.Allow(ctx, "user:a", TierStandard).Allowed)
	assert.True(t, l.Allow(ctx, "user:b", TierStandard).Allowed, "another subject has its own counter")
}

func TestLimiterTiersAreIndependent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newTestLimiter(&now, map[Tier]TierConfig{
		TierAuth:     {Limit: 1, Window: time.Minute},
		TierStandard: {Limit: 5, Window: time.Minute},
	})
	ctx := context.Background()

	require.True(t, l.Allow(ctx, "k", TierAuth).Allowed)
	require.False(t, l.Allow(ctx, "k", TierAuth).Allowed)
	assert.True(t, l.Allow(ctx, "k", TierStandard).Allowed, "auth exhaustion must not consume the standard tier")
}

func TestLimiterUnknownTierAllows(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newTestLimiter(&now, map[Tier]TierConfig{})
	assert.True(t, l.Allow(context.Background(), "k", TierWS).Allowed)
}

type brokenCounter struct{}

func (brokenCounter) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("counter down")
}

func TestLimiterFailsOpenOnCounterError(t *testing.T) {
	l := New(brokenCounter{}, map[Tier]TierConfig{
		TierStandard: {Limit: 1, Window: time.Minute},
	}, testLogger())
	assert.True(t, l.Allow(context.Background(), "k", TierStandard).Allowed)
}

func TestMemoryCounterWindowExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewMemoryCounterWithClock(func() time.Time { return now })

	n, err := c.Incr(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	n, _ = c.Incr(context.Background(), "k", time.Minute)
	require.Equal(t, int64(2), n)

	now = now.Add(2 * time.Minute)
	n, _ = c.Incr(context.Background(), "k", time.Minute)
	assert.Equal(t, int64(1), n, "expired key restarts at 1")
}
