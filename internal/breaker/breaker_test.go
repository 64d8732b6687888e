package breaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

var errBoom = errors.New("boom")

func newTestBreaker(now *time.Time) *Breaker {
	b := New(Options{FailureThreshold: 5, Cooldown: 30 * time.Second})
	b.now = func() time.Time { return *now }
	return b
}

func failing(ctx context.Context) error { return errBoom }
func succeeding(ctx context.Context) error { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	now := time.Now()
	b := newTestBreaker(&now)

	for i := 0; i < 5; i++ {
		require.Equal(t, Closed, b.State())
		err := b.Execute(context.Background(), failing)
		require.ErrorIs(t, err, errBoom)
	}
	require.Equal(t, Open, b.State())

	// Open: fail fast, call never invoked.
	var invoked bool
	err := b.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, invoked)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	now := time.Now()
	b := newTestBreaker(&now)

	for i := 0; i < 4; i++ {
		_ = b.Execute(context.Background(), failing)
	}
	require.NoError(t, b.Execute(context.Background(), succeeding))

	// Four more failures should not trip it: the streak restarted.
	for i := 0; i < 4; i++ {
		_ = b.Execute(context.Background(), failing)
	}
	assert.Equal(t, Closed, b.State())
}

func TestBreakerHalfOpenProbeSuccessCloses(t *testing.T) {
	now := time.Now()
	b := newTestBreaker(&now)
	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), failing)
	}
	require.Equal(t, Open, b.State())

	now = now.Add(31 * time.Second)
	require.NoError(t, b.Execute(context.Background(), succeeding))
	assert.Equal(t, Closed, b.State())
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	now := time.Now()
	b := newTestBreaker(&now)
	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), failing)
	}

	now = now.Add(31 * time.Second)
	require.ErrorIs(t, b.Execute(context.Background(), failing), errBoom)
	require.Equal(t, Open, b.State())

	// Cooldown restarted: still fast-failing before it elapses again.
	now = now.Add(15 * time.Second)
	require.ErrorIs(t, b.Execute(context.Background(), succeeding), ErrCircuitOpen)

	now = now.Add(16 * time.Second)
	require.NoError(t, b.Execute(context.Background(), succeeding))
	assert.Equal(t, Closed, b.State())
}

func TestBreakerSingleProbeUnderConcurrency(t *testing.T) {
	now := time.Now()
	b := newTestBreaker(&now)
	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), failing)
	}
	now = now.Add(31 * time.Second)

	var probes int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	var fastFails int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Execute(context.Background(), func(context.Context) error {
				atomic.AddInt32(&probes, 1)
				<-release
				return nil
			})
			if errors.Is(err, ErrCircuitOpen) {
				atomic.AddInt32(&fastFails, 1)
			}
		}()
	}
	// Let everyone reach the breaker before releasing the probe.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&probes), "exactly one caller may probe")
	assert.Equal(t, int32(19), atomic.LoadInt32(&fastFails))
	assert.Equal(t, Closed, b.State())
}

func TestBreakerLateSuccessDoesNotSkipCooldown(t *testing.T) {
	now := time.Now()
	b := newTestBreaker(&now)

	// One call admitted while closed, still in flight.
	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan error, 1)
	go func() {
		finished <- b.Execute(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// Concurrent failures trip the breaker while it runs.
	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), failing)
	}
	require.Equal(t, Open, b.State())

	// Its late success must not close the circuit.
	close(release)
	require.NoError(t, <-finished)
	assert.Equal(t, Open, b.State())
	require.ErrorIs(t, b.Execute(context.Background(), succeeding), ErrCircuitOpen)

	// The cooldown and probe discipline still apply.
	now = now.Add(31 * time.Second)
	require.NoError(t, b.Execute(context.Background(), succeeding))
	assert.Equal(t, Closed, b.State())
}

func TestBreakerContextErrorCountsAsFailure(t *testing.T) {
	now := time.Now()
	b := newTestBreaker(&now)
	for i := 0; i < 5; i++ {
		err := b.Execute(context.Background(), func(ctx context.Context) error {
			return context.DeadlineExceeded
		})
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.Equal(t, Open, b.State())
}

func TestRegistryIsolatesServices(t *testing.T) {
	reg := NewRegistry(Options{FailureThreshold: 2, Cooldown: time.Minute}, nil, testLogger())
	for i := 0; i < 2; i++ {
		_ = reg.Execute(context.Background(), "crm", failing)
	}
	require.Equal(t, Open, reg.State("crm"))

	// Another service is unaffected.
	require.NoError(t, reg.Execute(context.Background(), "analytics", succeeding))
	assert.Equal(t, Closed, reg.State("analytics"))
}

func TestRegistryPerServiceOverrides(t *testing.T) {
	reg := NewRegistry(Options{FailureThreshold: 5, Cooldown: time.Minute},
		map[string]Options{"content": {FailureThreshold: 2}}, testLogger())
	for i := 0; i < 2; i++ {
		_ = reg.Execute(context.Background(), "content", failing)
	}
	assert.Equal(t, Open, reg.State("content"))
}
