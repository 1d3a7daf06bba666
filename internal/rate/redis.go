package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The counter key holds the admitted cost of the current window and expires
// when the window ends. A missing key or a key without TTL starts a new window.
const admitScript = `
local key = KEYS[1]
local cost = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local window_ms = tonumber(ARGV[3])

local count = tonumber(redis.call("GET", key) or "0")
local ttl = redis.call("PTTL", key)
if ttl < 0 then
  count = 0
  ttl = window_ms
end

if count + cost > limit then
  return {0, count, ttl}
end

if count == 0 then
  redis.call("SET", key, cost, "PX", window_ms)
  return {1, cost, window_ms}
end

count = redis.call("INCRBY", key, cost)
return {1, count, ttl}
`

const peekScript = `
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  return {0, tonumber(ARGV[1])}
end
return {count, ttl}
`

var (
	admitLua = redis.NewScript(admitScript)
	peekLua  = redis.NewScript(peekScript)
)

// RedisBackend shares windows across processes through Redis.
type RedisBackend struct {
	redis redis.UniversalClient
	now   func() time.Time
}

// NewRedisBackend creates a [RedisBackend] on client.
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{redis: client, now: time.Now}
}

// Take implements [Backend].
//
//	Performance: 1 Lua EVALSHA.
func (b *RedisBackend) Take(ctx context.Context, key string, cost, limit int64, window time.Duration) (Result, error) {
	res, err := admitLua.Run(ctx, b.redis, []string{key}, cost, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(res) != 3 {
		return Result{}, fmt.Errorf("%w: invalid admit script response", ErrBackendUnavailable)
	}

	return newResult(res[0] == 1, res[1], limit, b.now(), time.Duration(res[2])*time.Millisecond), nil
}

// Peek implements [Backend].
func (b *RedisBackend) Peek(ctx context.Context, key string, limit int64, window time.Duration) (Result, error) {
	res, err := peekLua.Run(ctx, b.redis, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(res) != 2 {
		return Result{}, fmt.Errorf("%w: invalid peek script response", ErrBackendUnavailable)
	}

	return newResult(res[0] < limit, res[0], limit, b.now(), time.Duration(res[1])*time.Millisecond), nil
}

// Reset implements [Backend].
func (b *RedisBackend) Reset(ctx context.Context, key string) error {
	if err := b.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
