package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"remindify/internal/auth"
)

// redisTokenBlacklist implements auth.TokenBlacklist on top of Redis keys with a TTL.
type redisTokenBlacklist struct {
	client *redis.Client
}

// NewRedisTokenBlacklist creates a new Redis-backed token blacklist.
func NewRedisTokenBlacklist(client *redis.Client) auth.TokenBlacklist {
	return &redisTokenBlacklist{client: client}
}

const blacklistKeyPrefix = "remindify:bl:jti:"

// Add stores jti until the token's own expiry, after which Redis drops the key.
func (r *redisTokenBlacklist) Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error {
	duration := time.Until(originalTokenExpTime)
	if duration <= 0 {
		// already expired; validation rejects it anyway
		return nil
	}

	if err := r.client.Set(ctx, blacklistKeyPrefix+jti, "revoked", duration).Err(); err != nil {
		return fmt.Errorf("failed to blacklist jti %s: %w", jti, err)
	}
	return nil
}

func (r *redisTokenBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	_, err := r.client.Get(ctx, blacklistKeyPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist for jti %s: %w", jti, err)
	}
	return true, nil
}
