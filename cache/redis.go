package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is a thin wrapper around redis.Client for the cache keys this
// engine needs. It degrades to a nil client rather than erroring when Redis
// is unreachable at startup — callers check for a nil *RedisClient and skip
// caching rather than failing the whole process over an optional dependency.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient dials host:port and pings it once. Returns nil (not an
// error) if the ping fails, so callers can treat Redis as optional.
func NewRedisClient(host, port, password string) *RedisClient {
	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️  Failed to connect to Redis at %s: %v", addr, err)
		return nil
	}

	log.Printf("✅ Connected to Redis at %s", addr)
	return &RedisClient{client: client}
}

// Delete removes a key; notifications.Manager.RefreshCache uses it to drop
// the "active_webhooks" key.
func (r *RedisClient) Delete(ctx context.Context, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	return r.client.Del(ctx, key).Err()
}

// Close closes the underlying connection.
func (r *RedisClient) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
