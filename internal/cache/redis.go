package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quantumquery/internal/ingest"
)

// Key prefix for stored contexts
const contextKeyPrefix = "ctx:"

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache client
func NewRedisCache(addr, password string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisCache{
		client: client,
	}, nil
}

func (c *RedisCache) GetContexts(ctx context.Context, id string) ([]ingest.Result, error) {
	data, err := c.client.Get(ctx, contextKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, err
	}

	var contexts []ingest.Result
	if err := json.Unmarshal(data, &contexts); err != nil {
		return nil, err
	}
	return contexts, nil
}

func (c *RedisCache) SetContexts(ctx context.Context, id string, contexts []ingest.Result, ttl time.Duration) error {
	data, err := json.Marshal(contexts)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, contextKeyPrefix+id, data, ttl).Err()
}

// Close closes the cache connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
