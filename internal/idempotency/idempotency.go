// Package idempotency records processed operation keys so retries and duplicate
// deliveries run at most once.
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces keys written to Redis.
const DefaultPrefix = "idem:"

// redisCmd is the subset of redis.Cmdable the store needs.
type redisCmd interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps keys in Redis with SET NX and a TTL, so every instance of the
// service shares them.
type RedisStore struct {
	client redisCmd
	prefix string
}

// NewRedisStore creates a RedisStore. An empty prefix uses DefaultPrefix.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return newRedisStore(client, prefix)
}

func newRedisStore(client redisCmd, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Acquire reports whether key was newly recorded.
func (s *RedisStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire idempotency key %s: %w", key, err)
	}
	return ok, nil
}

// Release forgets key.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key %s: %w", key, err)
	}
	return nil
}

// MemoryStore keeps keys in process memory. Expired keys are dropped lazily.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]time.Time), now: time.Now}
}

// Acquire reports whether key was newly recorded. A ttl <= 0 never expires.
func (s *MemoryStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expires, ok := s.keys[key]; ok && (expires.IsZero() || now.Before(expires)) {
		return false, nil
	}

	var expires time.Time
	if ttl > 0 {
		expires = now.Add(ttl)
	}
	s.keys[key] = expires
	return true, nil
}

// Release forgets key.
func (s *MemoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}
