package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Rate limiting key patterns:
// - ratelimit:{ip}:ingest - window TTL, per-window event submissions

// RateLimitConfig contains configuration for rate limiting
type RateLimitConfig struct {
	IngestLimit  int           // Max events per window per client
	IngestWindow time.Duration // Ingest rate limit window
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		IngestLimit:  600,
		IngestWindow: 60 * time.Second,
	}
}

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool          // Whether the action is allowed
	Remaining int           // Remaining actions in the window
	ResetIn   time.Duration // Time until the window resets
	Limit     int           // The limit for this action
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: config,
	}
}

// fixedWindowScript atomically increments and checks a fixed window counter.
var fixedWindowScript = goredis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local current = tonumber(redis.call('GET', key) or '0')
local ttl = redis.call('TTL', key)
if ttl < 0 then
	ttl = window
end

if current < limit then
	redis.call('INCR', key)
	if ttl == window then
		redis.call('EXPIRE', key, window)
	end
	return {1, limit - current - 1, ttl}
end
return {0, 0, ttl}
`)

// AllowIngest checks if a client may submit another event
func (r *RateLimiter) AllowIngest(ctx context.Context, clientKey string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s:ingest", clientKey)
	return r.checkLimit(ctx, key, r.config.IngestLimit, r.config.IngestWindow)
}

func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	result, err := fixedWindowScript.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}
	allowed, _ := resultSlice[0].(int64)
	remaining, _ := resultSlice[1].(int64)
	resetIn, _ := resultSlice[2].(int64)

	return &RateLimitResult{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetIn:   time.Duration(resetIn) * time.Second,
		Limit:     limit,
	}, nil
}
