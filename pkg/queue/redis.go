package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps pending messages in a list, retries in a sorted set
// scored by due time and failures in a dead letter list.
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
}

// RedisOption configures RedisBackend.
type RedisOption func(*RedisBackend)

// WithKeyPrefix sets a custom key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisBackend) {
		r.keyPrefix = prefix
	}
}

func NewRedisBackend(client *redis.Client, opts ...RedisOption) *RedisBackend {
	rb := &RedisBackend{client: client, keyPrefix: "marketpulse:queue"}
	for _, opt := range opts {
		opt(rb)
	}
	return rb
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *RedisBackend) Push(ctx context.Context, data []byte) error {
	if err := r.client.LPush(ctx, r.queueKey(), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

func (r *RedisBackend) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	result, err := r.client.BRPop(ctx, timeout, r.queueKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("brpop: %w", err)
	}
	if len(result) < 2 {
		return nil, nil
	}
	return []byte(result[1]), nil
}

func (r *RedisBackend) Schedule(ctx context.Context, data []byte, at time.Time) error {
	err := r.client.ZAdd(ctx, r.retryKey(), redis.Z{
		Score:  float64(at.Unix()),
		Member: data,
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd retry: %w", err)
	}
	return nil
}

func (r *RedisBackend) Promote(ctx context.Context, now time.Time) (int, error) {
	due, err := r.client.ZRangeByScore(ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("fetch retries: %w", err)
	}

	moved := 0
	for _, member := range due {
		pipe := r.client.TxPipeline()
		pipe.ZRem(ctx, r.retryKey(), member)
		pipe.LPush(ctx, r.queueKey(), member)
		if _, err := pipe.Exec(ctx); err != nil {
			return moved, fmt.Errorf("move retry to queue: %w", err)
		}
		moved++
	}
	return moved, nil
}

func (r *RedisBackend) DeadLetter(ctx context.Context, data []byte) error {
	if err := r.client.LPush(ctx, r.deadLetterKey(), data).Err(); err != nil {
		return fmt.Errorf("lpush dlq: %w", err)
	}
	return nil
}

func (r *RedisBackend) queueKey() string      { return r.keyPrefix + ":messages" }
func (r *RedisBackend) retryKey() string      { return r.keyPrefix + ":retry" }
func (r *RedisBackend) deadLetterKey() string { return r.keyPrefix + ":dlq" }

var _ Backend = (*RedisBackend)(nil)
