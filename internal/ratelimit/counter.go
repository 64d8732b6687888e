// internal/ratelimit/counter.go
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCounter gives atomic increment-with-TTL across gateway replicas.
type redisCounter struct {
	cli *redis.Client
}

func NewRedisCounter(cli *redis.Client) Counter {
	return &redisCounter{cli: cli}
}

func (c *redisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := c.cli.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// memoryCounter is per-instance only: limits become approximate when
// multiple replicas run without Redis. Fine for dev and tests.
type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]*memCount
	now    func() time.Time
}

type memCount struct {
	n         int64
	expiresAt time.Time
}

func NewMemoryCounter() Counter {
	return &memoryCounter{counts: map[string]*memCount{}, now: time.Now}
}

func NewMemoryCounterWithClock(now func() time.Time) Counter {
	return &memoryCounter{counts: map[string]*memCount{}, now: now}
}

func (c *memoryCounter) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	e, ok := c.counts[key]
	if !ok || now.After(e.expiresAt) {
		e = &memCount{expiresAt: now.Add(ttl)}
		c.counts[key] = e
	}
	e.n++
	// Opportunistic sweep so long-running dev processes do not grow unbounded.
	if len(c.counts) > 4096 {
		for k, v := range c.counts {
			if now.After(v.expiresAt) {
				delete(c.counts, k)
			}
		}
	}
	return e.n, nil
}
