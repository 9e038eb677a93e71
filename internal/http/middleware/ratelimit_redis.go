package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills and takes one token atomically. The caller
// supplies the clock so every replica agrees on elapsed time.
var tokenBucketScript = redis.NewScript(`
local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = burst
  ts = now
end
if now > ts then
  tokens = math.min(burst, tokens + (now - ts) / 1000 * rate)
end
local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(now))
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return allowed
`)

// RedisLimiter shares one token bucket per key across API replicas.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	rate   float64
	burst  int
	idle   time.Duration
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, rate float64, burst int) *RedisLimiter {
	if client == nil {
		panic("middleware: redis client required")
	}
	if burst < 1 {
		burst = 1
	}
	return &RedisLimiter{
		client: client,
		prefix: "clinicdesk:ratelimit:",
		rate:   rate,
		burst:  burst,
		idle:   10 * time.Minute,
		now:    time.Now,
	}
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	allowed, err := tokenBucketScript.Run(ctx, rl.client,
		[]string{rl.prefix + key},
		strconv.FormatFloat(rl.rate, 'f', -1, 64),
		rl.burst,
		rl.now().UnixMilli(),
		rl.idle.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("middleware: redis token bucket: %w", err)
	}
	return allowed == 1, nil
}
