package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// claimScript implements Store.Claim atomically: it fails closed if the
// used-marker already exists (another claimant won the race), otherwise it
// reads the block, marks it used with the block's remaining TTL, and
// deletes the block key in the same round trip.
const claimScript = `
local block = redis.call("GET", KEYS[1])
if not block then
  return false
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return false
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
redis.call("SET", KEYS[2], "1", "PX", ttl)
redis.call("DEL", KEYS[1])
return block
`

type redisStore struct {
	client *redis.Client
	claim  *redis.Script
}

// NewRedisStore wraps a go-redis client as a Store.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client, claim: redis.NewScript(claimScript)}
}

func (s *redisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("pool: set %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pool: get %s: %w", key, err)
	}
	return b, nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("pool: delete %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("pool: exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *redisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("pool: scan %s: %w", pattern, err)
	}
	return keys, nil
}

func (s *redisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("pool: ttl %s: %w", key, err)
	}
	return d, nil
}

func (s *redisStore) Claim(ctx context.Context, blockKey, usedKey string, ttl time.Duration) ([]byte, error) {
	res, err := s.claim.Run(ctx, s.client, []string{blockKey, usedKey}, ttl.Milliseconds()).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("pool: claim %s: %w", blockKey, err)
	}
	switch v := res.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, ErrNotFound
	}
}

func (s *redisStore) IncrBy(ctx context.Context, counterKey string, delta int64) error {
	if err := s.client.IncrBy(ctx, counterKey, delta).Err(); err != nil {
		return fmt.Errorf("pool: incrby %s: %w", counterKey, err)
	}
	return nil
}

func (s *redisStore) GetCounters(ctx context.Context, keys ...string) (map[string]int64, error) {
	if len(keys) == 0 {
		return map[string]int64{}, nil
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("pool: mget counters: %w", err)
	}
	out := make(map[string]int64, len(keys))
	for i, k := range keys {
		switch v := vals[i].(type) {
		case string:
			var n int64
			fmt.Sscanf(v, "%d", &n)
			out[k] = n
		default:
			out[k] = 0
		}
	}
	return out, nil
}

func (s *redisStore) SIndexAdd(ctx context.Context, setKey, member string) error {
	if err := s.client.SAdd(ctx, setKey, member).Err(); err != nil {
		return fmt.Errorf("pool: sadd %s: %w", setKey, err)
	}
	return nil
}

func (s *redisStore) SIndexRem(ctx context.Context, setKey, member string) error {
	if err := s.client.SRem(ctx, setKey, member).Err(); err != nil {
		return fmt.Errorf("pool: srem %s: %w", setKey, err)
	}
	return nil
}

func (s *redisStore) SIndexMembers(ctx context.Context, setKey string, limit int) ([]string, error) {
	members, err := s.client.SRandMemberN(ctx, setKey, int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("pool: srandmember %s: %w", setKey, err)
	}
	return members, nil
}

func (s *redisStore) FlushPattern(ctx context.Context, pattern string) error {
	keys, err := s.Keys(ctx, pattern)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("pool: flush pattern %s: %w", pattern, err)
	}
	return nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pool: ping: %w", err)
	}
	return nil
}
