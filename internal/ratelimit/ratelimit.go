// Package ratelimit caps how often a caller may hit the submission
// endpoints: a fixed per-minute window counted in Redis, with an
// in-memory fallback when Redis is down so the API keeps serving.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"helvetia/internal/httpkit"
	"helvetia/internal/pkg/errors"
	"helvetia/internal/pkg/logger"
)

type Limiter struct {
	rpm   int
	redis *redis.Client
	log   *logger.Logger

	mu       sync.Mutex
	counts   map[string]int
	windowAt time.Time
}

// New builds a limiter allowing rpm requests per key per minute. An
// rpm of zero or less disables limiting. rdb may be nil.
func New(rpm int, rdb *redis.Client, log *logger.Logger) *Limiter {
	return &Limiter{
		rpm:    rpm,
		redis:  rdb,
		log:    log.WithComponent("ratelimit"),
		counts: map[string]int{},
	}
}

func windowKey(key string) string {
	return fmt.Sprintf("helvetia:ratelimit:%s:%d", key, time.Now().Unix()/60)
}

// Allow reports whether the caller is inside its budget and how much
// of it remains, best-effort.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, int) {
	if l.rpm <= 0 {
		return true, l.rpm
	}
	if l.redis != nil {
		ctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()

		rkey := windowKey(key)
		n, err := l.redis.Incr(ctx, rkey).Result()
		if err != nil {
			l.log.Warn("redis limiter unavailable, falling back", "error", err)
			return l.allowLocal(key)
		}
		// A little past the minute so the window fully rolls over.
		if n == 1 {
			_ = l.redis.Expire(ctx, rkey, 65*time.Second).Err()
		}
		return int(n) <= l.rpm, l.rpm - int(n)
	}
	return l.allowLocal(key)
}

func (l *Limiter) allowLocal(key string) (bool, int) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.windowAt) > time.Minute {
		l.counts = map[string]int{}
		l.windowAt = now
	}
	l.counts[key]++
	n := l.counts[key]
	return n <= l.rpm, l.rpm - n
}

// Middleware enforces the limit per caller. Authenticated callers are
// keyed by user id, anonymous ones by client IP.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining := l.Allow(r.Context(), ClientKey(r))
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			w.Header().Set("Retry-After", "60")
			httpkit.WriteErr(w, http.StatusTooManyRequests, string(errors.CodeRateLimited), "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientKey picks the identity a request is limited under.
func ClientKey(r *http.Request) string {
	if uid := strings.TrimSpace(r.Header.Get("X-User-ID")); uid != "" {
		return "user:" + uid
	}
	return "ip:" + GetClientIP(r)
}

// GetClientIP extracts the client address from proxy headers or
// RemoteAddr.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return strings.TrimSpace(rip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
