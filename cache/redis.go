// cache/redis.go
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pressograph/prefsync"
	"github.com/redis/go-redis/v9"
)

// redisClient is the subset of *redis.Client that RedisCache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// RedisCache is a Cache shared by every application instance that points at
// the same Redis database.
type RedisCache struct {
	client redisClient
}

// NewRedisCache connects to addr and verifies the connection with PING.
func NewRedisCache(addr string, password string, db int) (*RedisCache, error) {
	return newRedisCache(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisCacheFromURL connects using a redis:// or rediss:// URL.
func NewRedisCacheFromURL(url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return newRedisCache(opts)
}

func newRedisCache(opts *redis.Options) (*RedisCache, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", prefsync.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get from redis: %w", err)
	}
	return value, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	n, err := c.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	if n == 0 {
		return prefsync.ErrNotFound
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
