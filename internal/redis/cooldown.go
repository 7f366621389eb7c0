package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cooldownKeyPrefix = "remindify:circle:cooldown:"

// RerequestCooldown remembers rejected requests for a while so the requester cannot
// immediately ask the same person again. Keys are directional: the person who rejected
// is still free to send a request the other way.
type RerequestCooldown struct {
	client *redis.Client
}

// NewRerequestCooldown creates a cooldown tracker on client.
func NewRerequestCooldown(client *redis.Client) *RerequestCooldown {
	return &RerequestCooldown{client: client}
}

func cooldownKey(requesterID, recipientID uint) string {
	return fmt.Sprintf("%s%d:%d", cooldownKeyPrefix, requesterID, recipientID)
}

// Start blocks requesterID from asking recipientID again for d.
func (c *RerequestCooldown) Start(ctx context.Context, requesterID, recipientID uint, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, cooldownKey(requesterID, recipientID), time.Now().Add(d).Unix(), d).Err(); err != nil {
		return fmt.Errorf("failed to start cooldown %d->%d: %w", requesterID, recipientID, err)
	}
	return nil
}

// Active reports whether requesterID is still cooling down towards recipientID.
func (c *RerequestCooldown) Active(ctx context.Context, requesterID, recipientID uint) (bool, error) {
	n, err := c.client.Exists(ctx, cooldownKey(requesterID, recipientID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cooldown %d->%d: %w", requesterID, recipientID, err)
	}
	return n > 0, nil
}

// NewClient opens a client from the application's Redis settings and pings it.
func NewClient(ctx context.Context, addr, password string, db, poolSize int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}
