package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"custodia/internal/domain"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces limiter counters so they never collide with other
// keys in a shared database.
const redisKeyPrefix = "custodia:ratelimit:"

// RedisLimiter shares one fixed window across every pipeline replica, so a
// fleet does not collectively exceed a calendar server's submission budget.
// The count-increment, window start, and allow decision all happen inside one
// script; replicas never race each other's reads.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

var allowScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
local allowed = 0
if hits <= tonumber(ARGV[2]) then
  allowed = 1
end
return {allowed, hits, ttl}
`)

func NewRedisLimiter(addr, password string, db int) (*RedisLimiter, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisLimiter{client: client, now: time.Now}, nil
}

// WithClock overrides the limiter clock. Used in tests.
func (r *RedisLimiter) WithClock(now func() time.Time) *RedisLimiter {
	if r == nil || now == nil {
		return r
	}
	r.now = now
	return r
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	windowMillis := window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = 1000
	}
	result, err := allowScript.Run(ctx, r.client, []string{redisKeyPrefix + key}, windowMillis, limit).Result()
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("rate limit script: %w", err)
	}
	allowed, hits, ttlMillis, err := parseAllowReply(result)
	if err != nil {
		return domain.RateLimitDecision{}, err
	}
	resetAt := r.now()
	if ttlMillis > 0 {
		resetAt = resetAt.Add(time.Duration(ttlMillis) * time.Millisecond)
	}
	remaining := limit - int(hits)
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

func (r *RedisLimiter) Close() error {
	return r.client.Close()
}

func parseAllowReply(reply any) (allowed bool, hits, ttlMillis int64, err error) {
	values, ok := reply.([]any)
	if !ok || len(values) != 3 {
		return false, 0, 0, errors.New("unexpected rate limit script reply")
	}
	verdict, ok := values[0].(int64)
	if !ok {
		return false, 0, 0, errors.New("invalid rate limit verdict")
	}
	hits, ok = values[1].(int64)
	if !ok {
		return false, 0, 0, errors.New("invalid rate limit counter")
	}
	ttlMillis, _ = values[2].(int64)
	return verdict == 1, hits, ttlMillis, nil
}
