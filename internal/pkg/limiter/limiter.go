/*
Package limiter provides keyed rate limiting.

Each key (a client IP for HTTP routes, a user id for chat sends) gets its own
token bucket. A cleanup goroutine drops buckets that have refilled completely,
so idle keys do not accumulate.
*/
package limiter

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"buzzchat/internal/pkg/errs"
	"buzzchat/internal/pkg/logx"
	"buzzchat/internal/pkg/resp"

	"golang.org/x/time/rate"
)

// KeyedLimiter hands out one *rate.Limiter per key.
type KeyedLimiter struct {
	mu     sync.RWMutex
	limits map[string]*rate.Limiter
	r      rate.Limit
	b      int
	name   string
}

// NewKeyedLimiter creates a limiter allowing r events per second with burst b per key.
// The cleanup goroutine stops when ctx is done.
func NewKeyedLimiter(ctx context.Context, name string, r rate.Limit, b int) *KeyedLimiter {
	k := &KeyedLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
		name:   name,
	}

	go k.cleanUp(ctx, 3*time.Minute)

	return k
}

// GetLimiter returns the limiter for key, creating it on first use.
func (k *KeyedLimiter) GetLimiter(key string) *rate.Limiter {
	k.mu.RLock()
	l, exists := k.limits[key]
	k.mu.RUnlock()

	if !exists {
		k.mu.Lock()
		l, exists = k.limits[key]
		if !exists {
			l = rate.NewLimiter(k.r, k.b)
			k.limits[key] = l
		}
		k.mu.Unlock()
	}

	return l
}

// Allow reports whether one event for key may happen now.
func (k *KeyedLimiter) Allow(key string) bool {
	return k.GetLimiter(key).Allow()
}

// Len returns the number of tracked keys.
func (k *KeyedLimiter) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.limits)
}

// sweep removes every key whose bucket is full at now and returns how many went.
func (k *KeyedLimiter) sweep(now time.Time) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	count := 0
	for key, l := range k.limits {
		if l.TokensAt(now) >= float64(l.Burst()) {
			delete(k.limits, key)
			count++
		}
	}
	return count
}

func (k *KeyedLimiter) cleanUp(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := k.sweep(time.Now())
			logx.Info("Rate limiter cleanup finished", "limiter", k.name, "removed", removed, "remaining", k.Len())
		}
	}
}

// Middleware rejects requests from a client IP that exceeded its budget with 429.
func (k *KeyedLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if ip == "" {
			ip = "unknown_ip"
		}

		if !k.Allow(ip) {
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}
