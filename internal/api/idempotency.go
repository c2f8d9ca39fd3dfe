package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper stores claimed idempotency keys in Redis so every API
// instance sees the same claims.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(tenant, userID, key string) string {
	return fmt.Sprintf("idem:%s:%s:%s", tenant, userID, key)
}

// Add claims the key if it has not been claimed yet. It returns true when
// the claim is new.
func (r *RedisDeduper) Add(ctx context.Context, tenant, userID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(tenant, userID, key), 1, r.ttl).Result()
}

// Remove releases a claim. It is used when the command behind the key did
// not commit, so the client's retry is allowed through.
func (r *RedisDeduper) Remove(ctx context.Context, tenant, userID, key string) error {
	return r.client.Del(ctx, r.key(tenant, userID, key)).Err()
}
