// Package pool implements the Redis-backed entropy block store: a
// keyspace of TTL'd blocks, an atomic claim primitive for at-most-once
// delivery, and per-field atomic statistics counters.
package pool

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get when the key does not exist.
var ErrNotFound = errors.New("pool: key not found")

// Store is the minimal key-value contract the pool needs from its backing
// store. redisStore is the production implementation; tests may supply a
// fake satisfying the same interface.
type Store interface {
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Claim atomically checks that usedKey is absent, reads blockKey's
	// value, writes usedKey with blockKey's remaining TTL, and deletes
	// blockKey — all as one operation, so concurrent Take callers can
	// never both succeed against the same block.
	Claim(ctx context.Context, blockKey, usedKey string, ttl time.Duration) ([]byte, error)

	IncrBy(ctx context.Context, counterKey string, delta int64) error
	GetCounters(ctx context.Context, keys ...string) (map[string]int64, error)

	SIndexAdd(ctx context.Context, setKey, member string) error
	SIndexRem(ctx context.Context, setKey, member string) error
	SIndexMembers(ctx context.Context, setKey string, limit int) ([]string, error)

	FlushPattern(ctx context.Context, pattern string) error

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error
}
