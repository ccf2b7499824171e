package persistence

import (
	"context"
	"sync"
	"time"
)

const dedupKeyPrefix = "servicedesk:processed:"

// RedisDeduper marks message fingerprints as processed using SETNX, giving
// ingestion a cheap first check before the store's unique constraint. The
// store stays authoritative; losing a redis key only costs a round trip.
type RedisDeduper struct {
	redis *Redis
	ttl   time.Duration
}

// NewRedisDeduper wraps the shared redis client.
func NewRedisDeduper(redis *Redis, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{redis: redis, ttl: ttl}
}

// Seen atomically marks fingerprint processed and reports whether it already was.
func (d *RedisDeduper) Seen(ctx context.Context, fingerprint string) (bool, error) {
	set, err := d.redis.Client.SetNX(ctx, dedupKeyPrefix+fingerprint, 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Forget releases a mark so a failed ingestion can be retried.
func (d *RedisDeduper) Forget(ctx context.Context, fingerprint string) error {
	return d.redis.Client.Del(ctx, dedupKeyPrefix+fingerprint).Err()
}

// MemoryDeduper is the in-process equivalent used by demo mode and tests.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryDeduper builds an empty registry.
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]struct{})}
}

// Seen atomically marks fingerprint processed and reports whether it already was.
func (d *MemoryDeduper) Seen(ctx context.Context, fingerprint string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[fingerprint]; ok {
		return true, nil
	}
	d.seen[fingerprint] = struct{}{}
	return false, nil
}

// Forget releases a mark so a failed ingestion can be retried.
func (d *MemoryDeduper) Forget(ctx context.Context, fingerprint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, fingerprint)
	return nil
}
