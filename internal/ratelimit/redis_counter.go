package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisTimeout = 250 * time.Millisecond

// RedisCounter is an httprate.LimitCounter shared by every instance that
// points at the same Redis. Each window lives under prefix:key:windowUnix and
// expires two windows later, once the sliding estimate no longer reads it.
//
// Redis failures are logged and treated as an empty counter so an outage
// degrades to no limiting rather than to refused requests.
type RedisCounter struct {
	client redis.UniversalClient
	prefix string
	window time.Duration
	logger *zap.Logger
}

var _ httprate.LimitCounter = (*RedisCounter)(nil)

func NewRedisCounter(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix, logger: logger}
}

func (c *RedisCounter) Config(_ int, windowLength time.Duration) {
	c.window = windowLength
}

func (c *RedisCounter) key(key string, window time.Time) string {
	return fmt.Sprintf("%s:%s:%d", c.prefix, key, window.Unix())
}

func (c *RedisCounter) Increment(key string, currentWindow time.Time) error {
	return c.IncrementBy(key, currentWindow, 1)
}

func (c *RedisCounter) IncrementBy(key string, currentWindow time.Time, amount int) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	k := c.key(key, currentWindow)
	pipe := c.client.TxPipeline()
	pipe.IncrBy(ctx, k, int64(amount))
	pipe.Expire(ctx, k, 2*c.window)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("rate limit increment failed", zap.String("key", k), zap.Error(err))
	}
	return nil
}

func (c *RedisCounter) Get(key string, currentWindow, previousWindow time.Time) (int, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	vals, err := c.client.MGet(ctx, c.key(key, currentWindow), c.key(key, previousWindow)).Result()
	if err != nil {
		c.logger.Warn("rate limit lookup failed", zap.String("key", key), zap.Error(err))
		return 0, 0, nil
	}
	curr, err := toCount(vals[0])
	if err != nil {
		return 0, 0, err
	}
	prev, err := toCount(vals[1])
	if err != nil {
		return 0, 0, err
	}
	return curr, prev, nil
}

func toCount(v any) (int, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case string:
		return strconv.Atoi(val)
	default:
		return 0, errors.New("unexpected counter value type")
	}
}
