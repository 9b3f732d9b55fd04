// Package ratelimit admits Spotify-bound requests per user with a token bucket kept in Redis.
//
// The bucket holds up to MaxTokens and refills continuously at RefillRate tokens per second; each
// admitted request costs one token. Read, refill, decide and write happen in a single Lua script, so
// concurrent requests on any number of server instances never over-admit.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/cur8/internal/shared"
)

// Defaults for a bucket when the configuration leaves a field unset.
const (
	DefaultMaxTokens  = 30
	DefaultRefillRate = 0.5
	DefaultIdleExpiry = 120 * time.Second

	requestCost = 1
)

// tokenBucket refills the bucket from the elapsed time and consumes one request's cost if available.
// A denied request leaves the bucket untouched.
//
//	KEYS[1] bucket hash
//	ARGV    max_tokens, refill_rate, now (unix seconds), cost, idle_expiry (seconds)
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local max_tokens = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local idle = tonumber(ARGV[5])

local state = redis.call("HMGET", key, "tokens", "at")
local tokens = tonumber(state[1])
local at = tonumber(state[2])
if tokens == nil then tokens = max_tokens end
if at == nil then at = now end

local elapsed = now - at
if elapsed < 0 then elapsed = 0 end
tokens = math.min(max_tokens, tokens + elapsed * refill_rate)

if tokens < cost then
  return 0
end

redis.call("HSET", key, "tokens", tostring(tokens - cost), "at", ARGV[3])
redis.call("EXPIRE", key, idle)
return 1
`)

// Limiter implements a per-subject token bucket on Redis.
type Limiter struct {
	client     redis.Scripter
	keyPrefix  string
	maxTokens  float64
	refillRate float64
	idle       time.Duration
	now        func() time.Time
}

// Option customizes a [Limiter].
type Option func(*Limiter)

// WithClock replaces the wall clock used as the script's notion of now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a [Limiter] from cfg. Zero fields fall back to the package defaults.
func New(client redis.Scripter, cfg shared.RateLimitConfig, keyPrefix string, opts ...Option) *Limiter {
	l := &Limiter{
		client:     client,
		keyPrefix:  keyPrefix,
		maxTokens:  cfg.MaxTokens,
		refillRate: cfg.RefillRate,
		idle:       time.Duration(cfg.IdleExpirySeconds) * time.Second,
		now:        time.Now,
	}
	if l.maxTokens <= 0 {
		l.maxTokens = DefaultMaxTokens
	}
	if l.refillRate <= 0 {
		l.refillRate = DefaultRefillRate
	}
	if l.idle <= 0 {
		l.idle = DefaultIdleExpiry
	}

	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the Redis key of subject's bucket.
func (l *Limiter) Key(subject string) string {
	return l.keyPrefix + "ratelimit:" + subject
}

// Allow consumes one token from subject's bucket and reports whether the request is admitted.
//
// Errors mean Redis could not be reached; callers should treat them as an unavailable dependency,
// not as a denial.
func (l *Limiter) Allow(ctx context.Context, subject string) (bool, error) {
	now := float64(l.now().UnixNano()) / float64(time.Second)

	res, err := tokenBucket.Run(ctx, l.client, []string{l.Key(subject)},
		strconv.FormatFloat(l.maxTokens, 'f', -1, 64),
		strconv.FormatFloat(l.refillRate, 'f', -1, 64),
		strconv.FormatFloat(now, 'f', 6, 64),
		requestCost,
		int64(l.idle/time.Second),
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: rate limiter: %v", shared.ErrServiceUnavailable, err)
	}
	return res == 1, nil
}
