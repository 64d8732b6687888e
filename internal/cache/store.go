// internal/cache/store.go
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore backs the cache with the shared Redis instance so entries are
// visible across gateway replicas.
type redisStore struct {
	cli *redis.Client
}

func NewRedisStore(cli *redis.Client) Store {
	return &redisStore{cli: cli}
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.cli.Get(ctx, "cache:"+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.cli.Set(ctx, "cache:"+key, value, ttl).Err()
}

// memoryStore is the single-instance fallback and test double. Expired
// entries are dropped lazily on read.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryStore() Store {
	return &memoryStore{entries: map[string]memEntry{}, now: time.Now}
}

// NewMemoryStoreWithClock injects a clock for expiry tests.
func NewMemoryStoreWithClock(now func() time.Time) Store {
	return &memoryStore{entries: map[string]memEntry{}, now: now}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if s.now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cp := append([]byte(nil), value...)
	s.mu.Lock()
	s.entries[key] = memEntry{value: cp, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}
