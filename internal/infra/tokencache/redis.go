package tokencache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares tokens between the server and worker processes.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed token cache.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "notifyhub:token:"}
}

// Get returns a cached value. Expiry is handled by Redis TTLs.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading token %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores value for ttl.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("storing token %s: %w", key, err)
	}
	return nil
}

// Delete drops a cached value.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("deleting token %s: %w", key, err)
	}
	return nil
}
