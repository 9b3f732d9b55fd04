package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/cur8/internal/shared"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// Redis implements [Store] on a Redis server. Keys are "<prefix><ns>:<key>".
type Redis struct {
	client    redis.UniversalClient
	keyPrefix string
}

// OpenRedis connects to the server at rawURL (redis:// or rediss://) and checks it answers PING.
func OpenRedis(ctx context.Context, rawURL, keyPrefix string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = DefaultDialTimeout
	opts.ReadTimeout = DefaultReadTimeout
	opts.WriteTimeout = DefaultWriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedis(client, keyPrefix), nil
}

// NewRedis wraps a pre-configured client. Tests pass a miniredis-backed client.
func NewRedis(client redis.UniversalClient, keyPrefix string) *Redis {
	return &Redis{client: client, keyPrefix: keyPrefix}
}

// Client exposes the connection so the rate limiter can share it.
func (s *Redis) Client() redis.UniversalClient { return s.client }

func (s *Redis) redisKey(ns, key string) string {
	return s.keyPrefix + ns + ":" + key
}

func (s *Redis) Put(ctx context.Context, ns, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.redisKey(ns, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: failed to store %s: %v", shared.ErrServiceUnavailable, ns, err)
	}
	return nil
}

// Take uses GETDEL, a single atomic command.
func (s *Redis) Take(ctx context.Context, ns, key string) (string, error) {
	v, err := s.client.GetDel(ctx, s.redisKey(ns, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to take %s: %v", shared.ErrServiceUnavailable, ns, err)
	}
	return v, nil
}

func (s *Redis) Get(ctx context.Context, ns, key string) (string, error) {
	v, err := s.client.Get(ctx, s.redisKey(ns, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to read %s: %v", shared.ErrServiceUnavailable, ns, err)
	}
	return v, nil
}

func (s *Redis) Delete(ctx context.Context, ns, key string) error {
	if err := s.client.Del(ctx, s.redisKey(ns, key)).Err(); err != nil {
		return fmt.Errorf("%w: failed to delete %s: %v", shared.ErrServiceUnavailable, ns, err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (s *Redis) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis health check failed: %v", shared.ErrServiceUnavailable, err)
	}
	return nil
}

// Close closes the Redis client connection.
func (s *Redis) Close() error {
	return s.client.Close()
}
