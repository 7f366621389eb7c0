package auth

import (
	"context"
	"time"
)

// TokenBlacklist stores revoked token IDs (jti) until the token would have expired anyway.
type TokenBlacklist interface {
	// Add revokes jti until originalTokenExpTime.
	Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}
