package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"remindify/internal/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

// AuthMiddleware validates the bearer token and stores its claims in the request context.
// Handlers read the acting user from there and pass it to services explicitly.
func AuthMiddleware(secret string, blacklist auth.TokenBlacklist) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, "missing authorization token", http.StatusUnauthorized)
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || tokenString == "" {
				writeError(w, "authorization header must be 'Bearer {token}'", http.StatusUnauthorized)
				return
			}

			claims, err := auth.ValidateToken(r.Context(), tokenString, secret, blacklist)
			if err != nil {
				log.Printf("Rejected token for %s %s: %v", r.Method, r.URL.Path, err)
				writeError(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaimsFromContext returns the claims stored by AuthMiddleware.
func GetClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// GetUserIDFromContext returns the authenticated user's ID, or false outside AuthMiddleware.
func GetUserIDFromContext(ctx context.Context) (uint, bool) {
	claims, ok := GetClaimsFromContext(ctx)
	if !ok || claims.UserID == 0 {
		return 0, false
	}
	return claims.UserID, true
}

// WithClaims returns a copy of ctx carrying claims, as AuthMiddleware would.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
