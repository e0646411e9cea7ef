package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/benvon/checkin-insights/internal/models"
)

// RedisCache shares results between processes. Redis failures are logged and
// read as misses.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache connects to redisURL and verifies the connection
func NewRedisCache(redisURL string, logger *zap.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheWithClient(client, logger), nil
}

// NewRedisCacheWithClient wraps an existing client
func NewRedisCacheWithClient(client *redis.Client, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, logger: logger}
}

// Get implements Cache
func (c *RedisCache) Get(ctx context.Context, key Key) (*models.PredictionResult, bool) {
	r, _, ok := c.GetWithTTL(ctx, key)
	return r, ok
}

// GetWithTTL implements TTLReader. The value and its remaining lifetime are
// read in one round trip.
func (c *RedisCache) GetWithTTL(ctx context.Context, key Key) (*models.PredictionResult, time.Duration, bool) {
	k := key.String()
	var get *redis.StringCmd
	var pttl *redis.DurationCmd
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, k)
		pttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("prediction_cache_read_failed", append(key.fields(), zap.Error(err))...)
		return nil, 0, false
	}
	data, err := get.Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("prediction_cache_read_failed", append(key.fields(), zap.Error(err))...)
		}
		return nil, 0, false
	}
	var result models.PredictionResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("prediction_cache_decode_failed", append(key.fields(), zap.Error(err))...)
		return nil, 0, false
	}
	// PTTL reports -1 and -2 as raw durations for "no expiry" and "missing"
	remaining := pttl.Val()
	if pttl.Err() != nil || remaining < time.Millisecond {
		remaining = 0
	}
	return &result, remaining, true
}

// Put implements Cache
func (c *RedisCache) Put(ctx context.Context, key Key, result *models.PredictionResult, ttl time.Duration) error {
	if result == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode cached prediction: %w", err)
	}
	if err := c.client.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write prediction cache: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
