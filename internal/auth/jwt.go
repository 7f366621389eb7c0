package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"remindify/internal/config"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenRevoked = errors.New("token has been revoked")
)

// Claims are the custom JWT claims. The acting user of every API call comes from here.
type Claims struct {
	UserID   uint   `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateToken issues a signed HS256 token for the user with a random jti.
func GenerateToken(userID uint, username string, authCfg config.AuthConfig) (string, error) {
	jwtID, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate token id: %w", err)
	}

	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(authCfg.JWTExpiry)),
			ID:        jwtID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    authCfg.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(authCfg.JWTSecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken parses and verifies tokenString. A nil blacklist skips the revocation check.
func ValidateToken(ctx context.Context, tokenString string, jwtKey string, blacklist TokenBlacklist) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	if blacklist != nil {
		if claims.ID == "" {
			return nil, fmt.Errorf("%w: missing jti", ErrTokenInvalid)
		}
		revoked, err := blacklist.IsBlacklisted(ctx, claims.ID)
		if err != nil {
			// fail closed
			return nil, fmt.Errorf("failed to check token blacklist: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}
