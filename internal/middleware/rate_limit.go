package middleware

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// UserRateLimiter hands out one token bucket per authenticated user.
// Buckets idle long enough to have refilled are dropped by Sweep.
type UserRateLimiter struct {
	mu        sync.Mutex
	limiters  map[uint]*userLimiter
	limit     rate.Limit
	burst     int
	idleAfter time.Duration
	now       func() time.Time
}

type userLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewUserRateLimiter allows requestsPerMinute on average with bursts of burst.
// A non-positive requestsPerMinute disables limiting.
func NewUserRateLimiter(requestsPerMinute, burst int) *UserRateLimiter {
	limit := rate.Inf
	if burst <= 0 {
		burst = 1
	}
	idleAfter := time.Minute
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
		// a bucket untouched this long is full again
		idleAfter = max(idleAfter, time.Duration(burst)*time.Minute/time.Duration(requestsPerMinute))
	}
	return &UserRateLimiter{
		limiters:  make(map[uint]*userLimiter),
		limit:     limit,
		burst:     burst,
		idleAfter: idleAfter,
		now:       time.Now,
	}
}

// Allow reports whether userID may make another request now.
func (l *UserRateLimiter) Allow(userID uint) bool {
	l.mu.Lock()
	now := l.now()
	ul, ok := l.limiters[userID]
	if !ok {
		ul = &userLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = ul
	}
	ul.lastSeen = now
	l.mu.Unlock()
	return ul.lim.AllowN(now, 1)
}

// Sweep drops buckets that have not been used for a full refill period and
// returns how many were dropped.
func (l *UserRateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idleAfter)
	removed := 0
	for id, ul := range l.limiters {
		if ul.lastSeen.Before(cutoff) {
			delete(l.limiters, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (l *UserRateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				log.Printf("Rate limiter dropped %d idle user buckets", n)
			}
		}
	}
}

func (l *UserRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Wrap limits next per authenticated user. It must run after AuthMiddleware.
func (l *UserRateLimiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserIDFromContext(r.Context())
		if !ok {
			writeError(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		if !l.Allow(userID) {
			w.Header().Set("Retry-After", "60")
			writeError(w, "too many requests, slow down", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
