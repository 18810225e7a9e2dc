// Package ratelimit bounds request attempts per client with a Redis sliding
// window.
//
// Each key owns a sorted set of attempt timestamps, trimmed and counted in
// one MULTI/EXEC pipeline. If that pipeline fails the limiter fails open:
// the request is allowed and the error logged. Once a request is denied,
// later Redis errors are logged but never turn the denial into an allow.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "claimd:rate:"

// Logger is the logging surface the limiter needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a Redis sliding-window rate limiter.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	logger Logger
	now    func() time.Time
}

// New creates a limiter allowing limit attempts per window for each key.
func New(client *redis.Client, limit int, window time.Duration, logger Logger) *Limiter {
	return &Limiter{
		client: client,
		limit:  limit,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// Allow records an attempt for key and reports whether it is within the limit.
// Denied attempts are not counted against the window.
func (l *Limiter) Allow(ctx context.Context, key string) Result {
	res, err := l.allow(ctx, key)
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing request", "error", err)
		return Result{Allowed: true, Remaining: l.limit}
	}
	return res
}

func (l *Limiter) allow(ctx context.Context, key string) (Result, error) {
	redisKey := keyPrefix + key
	now := l.now()
	nowMs := now.UnixMilli()
	cutoff := nowMs - l.window.Milliseconds()
	member := uuid.NewString()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(nowMs), Member: member})
	card := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("recording attempt: %w", err)
	}

	count := int(card.Val())
	if count <= l.limit {
		return Result{Allowed: true, Remaining: l.limit - count}, nil
	}

	// Over the limit. The verdict stands even if the cleanup below fails;
	// a failed ZRem only leaves the denied attempt to age out of the window.
	if err := l.client.ZRem(ctx, redisKey, member).Err(); err != nil {
		l.logger.Warn("rate limiter could not drop denied attempt", "error", err)
	}

	retryAfter := l.window
	oldest, err := l.client.ZRangeWithScores(ctx, redisKey, 0, 0).Result()
	switch {
	case err != nil:
		l.logger.Warn("rate limiter could not read oldest attempt", "error", err)
	case len(oldest) == 1:
		expires := time.UnixMilli(int64(oldest[0].Score)).Add(l.window)
		retryAfter = expires.Sub(now)
	}
	if retryAfter < time.Second {
		retryAfter = time.Second
	}

	return Result{Allowed: false, RetryAfter: retryAfter}, nil
}

// CheckHealth verifies Redis connectivity.
func (l *Limiter) CheckHealth(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
