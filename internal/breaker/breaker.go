// internal/breaker/breaker.go

// Package breaker guards each downstream service with its own circuit
// breaker. Closed counts consecutive failures; after the threshold the
// breaker opens and calls fail fast without touching the network; after the
// cooldown exactly one caller is admitted as the half-open probe, and its
// outcome decides whether the breaker closes again or re-opens.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without invoking the call when the breaker is
// open (or another caller currently holds the half-open probe slot).
var ErrCircuitOpen = errors.New("circuit open")

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

type Options struct {
	FailureThreshold int
	Cooldown         time.Duration
}

func (o Options) withDefaults() Options {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 5
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 30 * time.Second
	}
	return o
}

// Breaker is the per-service state machine. All transitions happen under the
// breaker's own mutex; unrelated services never contend.
type Breaker struct {
	mu sync.Mutex

	state               State
	consecutiveFailures int
	openedAt            time.Time
	probeInFlight       bool

	opts Options
	now  func() time.Time
}

func New(opts Options) *Breaker {
	return &Breaker{opts: opts.withDefaults(), now: time.Now}
}

// acquire decides whether this caller may proceed, and whether it is the
// half-open probe.
func (b *Breaker) acquire() (proceed, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true, false
	case Open:
		if b.now().Sub(b.openedAt) < b.opts.Cooldown {
			return false, false
		}
		// Cooldown elapsed: this caller becomes the single probe.
		b.state = HalfOpen
		b.probeInFlight = true
		return true, true
	default: // HalfOpen
		if b.probeInFlight {
			return false, false
		}
		b.probeInFlight = true
		return true, true
	}
}

func (b *Breaker) onSuccess(probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probeInFlight = false
		b.state = Closed
		b.consecutiveFailures = 0
		return
	}
	// A call admitted while closed can finish after concurrent failures
	// opened the breaker; its late success must not skip the cooldown.
	if b.state != Closed {
		return
	}
	b.consecutiveFailures = 0
}

func (b *Breaker) onFailure(probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		// Probe failed: back to open, restart the cooldown.
		b.probeInFlight = false
		b.state = Open
		b.openedAt = b.now()
		return
	}
	b.consecutiveFailures++
	if b.consecutiveFailures >= b.opts.FailureThreshold {
		b.state = Open
		b.openedAt = b.now()
	}
}

// State returns the current state for metrics and tests.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn under the breaker. A context error from fn (timeout,
// cancellation) counts as a failure like any other.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	proceed, probe := b.acquire()
	if !proceed {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	if err != nil {
		b.onFailure(probe)
		return err
	}
	b.onSuccess(probe)
	return nil
}
