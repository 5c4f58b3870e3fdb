package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/datarequests/pkg/storage"
)

const keyPrefix = "datarequests"

// RedisClient is the shared second-level cache for ownership records
type RedisClient struct {
	client *redis.Client
	ttl    map[string]time.Duration
}

// NewRedisClient connects to the Redis instance named by config.RedisURL
func NewRedisClient(ctx context.Context, config storage.Config) (*RedisClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB > 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisClientFromClient(client, config.CacheTTL), nil
}

// NewRedisClientFromClient wraps an existing client
func NewRedisClientFromClient(client *redis.Client, ttl map[string]time.Duration) *RedisClient {
	return &RedisClient{client: client, ttl: ttl}
}

func redisKey(kind string, id int64) string {
	return fmt.Sprintf("%s:%s:%d", keyPrefix, kind, id)
}

// get decodes the cached record into dest. A miss returns (false, nil).
func (c *RedisClient) get(ctx context.Context, kind string, id int64, dest any) (bool, error) {
	key := redisKey(kind, id)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.client.Del(ctx, key)
		return false, fmt.Errorf("failed to unmarshal %s: %w", kind, err)
	}
	return true, nil
}

func (c *RedisClient) set(ctx context.Context, kind string, id int64, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	return c.client.Set(ctx, redisKey(kind, id), data, c.ttl[kind]).Err()
}

func (c *RedisClient) invalidate(ctx context.Context, kind string, id int64) error {
	return c.client.Del(ctx, redisKey(kind, id)).Err()
}

// Client returns the underlying client, used by the readiness probe
func (c *RedisClient) Client() *redis.Client {
	return c.client
}

// Close closes the connection pool
func (c *RedisClient) Close() error {
	return c.client.Close()
}
