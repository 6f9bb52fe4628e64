package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"notifyhub/internal/domain/notify"

	"github.com/redis/go-redis/v9"
)

var _ notify.RouteRateLimiter = (*RedisRouteLimiter)(nil)

// RedisRouteLimiter caps notify requests per route using Redis sorted sets.
// It uses a sliding window approach: each request is a member scored by its timestamp.
type RedisRouteLimiter struct {
	client    *redis.Client
	maxPerWin int
	window    time.Duration
}

// NewRedisRouteLimiter creates a per-route limiter allowing maxPerMinute
// requests in any sliding minute.
func NewRedisRouteLimiter(client *redis.Client, maxPerMinute int) *RedisRouteLimiter {
	return &RedisRouteLimiter{
		client:    client,
		maxPerWin: maxPerMinute,
		window:    time.Minute,
	}
}

// Allow checks whether another request may be dispatched to routeID.
func (r *RedisRouteLimiter) Allow(ctx context.Context, routeID string) (bool, error) {
	key := fmt.Sprintf("notifyhub:ratelimit:route:%s", routeID)
	now := time.Now()
	windowStart := now.Add(-r.window)

	pipe := r.client.Pipeline()

	// Remove expired entries (outside the sliding window)
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart.UnixNano()))

	countCmd := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("checking route rate limit: %w", err)
	}

	if countCmd.Val() >= int64(r.maxPerWin) {
		return false, nil
	}

	// Unique member so concurrent requests in the same nanosecond both count
	randBytes := make([]byte, 4)
	_, _ = rand.Read(randBytes)
	member := redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d:%s", now.UnixNano(), hex.EncodeToString(randBytes)),
	}
	pipe2 := r.client.Pipeline()
	pipe2.ZAdd(ctx, key, member)
	pipe2.Expire(ctx, key, r.window+time.Minute)

	if _, err := pipe2.Exec(ctx); err != nil {
		return false, fmt.Errorf("recording rate limit entry: %w", err)
	}
	return true, nil
}
