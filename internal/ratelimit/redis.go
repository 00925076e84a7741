package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const failureKeyPrefix = "login_failures:"

// RedisLimiter is the shared-backend Limiter for multi-instance deployments.
// It keeps the same advisory-check contract as MemoryLimiter: Check reads,
// only RecordFailure writes.
type RedisLimiter struct {
	client      *redis.Client
	maxAttempts int
	windowLen   time.Duration
	logger      *zap.Logger
}

// NewRedisLimiter connects to Redis and returns a shared limiter.
func NewRedisLimiter(redisURL string, maxAttempts int, windowLen time.Duration, logger *zap.Logger) (*RedisLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &RedisLimiter{
		client:      client,
		maxAttempts: maxAttempts,
		windowLen:   windowLen,
		logger:      logger,
	}, nil
}

// Close closes the Redis connection.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

func (l *RedisLimiter) Check(ctx context.Context, key string) (Decision, error) {
	val, err := l.client.Get(ctx, failureKeyPrefix+key).Result()
	if err == redis.Nil {
		return Decision{Allowed: true, Remaining: l.maxAttempts}, nil
	}
	if err != nil {
		l.logger.Error("Failed to read rate limit counter", zap.Error(err))
		return Decision{}, err
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		return Decision{Allowed: true, Remaining: l.maxAttempts}, nil
	}

	if count >= l.maxAttempts {
		ttl, err := l.client.TTL(ctx, failureKeyPrefix+key).Result()
		if err != nil {
			l.logger.Error("Failed to read rate limit TTL", zap.Error(err))
			return Decision{}, err
		}
		if ttl < 0 {
			ttl = l.windowLen
		}
		return Decision{Allowed: false, RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true, Remaining: l.maxAttempts - count}, nil
}

func (l *RedisLimiter) RecordFailure(ctx context.Context, key string) error {
	count, err := l.client.Incr(ctx, failureKeyPrefix+key).Result()
	if err != nil {
		l.logger.Error("Failed to increment rate limit counter", zap.Error(err))
		return err
	}

	// Set expiration on first failure of the window
	if count == 1 {
		if err := l.client.Expire(ctx, failureKeyPrefix+key, l.windowLen).Err(); err != nil {
			l.logger.Error("Failed to set rate limit expiration", zap.Error(err))
		}
	}
	return nil
}

func (l *RedisLimiter) Clear(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, failureKeyPrefix+key).Err(); err != nil {
		l.logger.Error("Failed to clear rate limit counter", zap.Error(err))
		return err
	}
	return nil
}
