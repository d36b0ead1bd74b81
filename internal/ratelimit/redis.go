package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const failurePrefix = "login_failures:v1:"

type redisLimiter struct {
	cache       *redis.Client
	maxAttempts int
	window      time.Duration
}

// NewRedisLimiter builds a limiter shared across instances. Cache errors
// fail open so an unavailable Redis never locks every account out.
func NewRedisLimiter(cache *redis.Client, maxAttempts int, window time.Duration) Limiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &redisLimiter{cache: cache, maxAttempts: maxAttempts, window: window}
}

func (l *redisLimiter) Allowed(ctx context.Context, email string) (bool, error) {
	cnt, err := l.cache.Get(ctx, failurePrefix+email).Int64()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return true, err
	}
	return cnt < int64(l.maxAttempts), nil
}

func (l *redisLimiter) RecordFailure(ctx context.Context, email string) error {
	key := failurePrefix + email
	cnt, err := l.cache.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	// The expiry is anchored to the first failure so the window measures
	// 15 minutes from the first attempt, not a sliding interval.
	if cnt == 1 {
		return l.cache.Expire(ctx, key, l.window).Err()
	}
	return nil
}

func (l *redisLimiter) Reset(ctx context.Context, email string) error {
	return l.cache.Del(ctx, failurePrefix+email).Err()
}
