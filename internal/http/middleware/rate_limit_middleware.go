package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/slidesmith/slidesmith/internal/http/response"
)

// Limiter decides whether one more request under key fits in the window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error)
}

type FailureMode string

const (
	// FailOpen lets traffic through when the limiter backend errors.
	FailOpen FailureMode = "fail_open"
	// FailClosed rejects traffic when the limiter backend errors.
	FailClosed FailureMode = "fail_closed"
)

type RateLimiter struct {
	limiter Limiter
	limit   int
	window  time.Duration
	mode    FailureMode
	scope   string
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return NewRateLimiterWithBackend(NewLocalFixedWindowLimiter(), limit, window, FailClosed, "local")
}

func NewRateLimiterWithBackend(limiter Limiter, limit int, window time.Duration, mode FailureMode, scope string) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if scope == "" {
		scope = "api"
	}
	return &RateLimiter{limiter: limiter, limit: limit, window: window, mode: mode, scope: scope}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIPKey(r)
			allowed, retryAfter, err := rl.limiter.Allow(r.Context(), key, rl.limit, rl.window)
			if err != nil {
				if rl.mode == FailOpen {
					slog.Warn("rate limiter backend unavailable, allowing request",
						"scope", rl.scope, "error", err.Error())
					next.ServeHTTP(w, r)
					return
				}
				w.Header().Set("Retry-After", retryAfterHeader(rl.window))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", retryAfterHeader(retryAfter))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type localFixedWindowLimiter struct {
	mu      sync.Mutex
	windows map[string]*localWindow
}

type localWindow struct {
	start time.Time
	count int
}

func NewLocalFixedWindowLimiter() Limiter {
	return &localFixedWindowLimiter{windows: make(map[string]*localWindow)}
}

func (l *localFixedWindowLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= window {
		// Opportunistic sweep of stale windows keeps the map bounded.
		for k, v := range l.windows {
			if now.Sub(v.start) >= 2*window {
				delete(l.windows, k)
			}
		}
		l.windows[key] = &localWindow{start: now, count: 1}
		return true, 0, nil
	}
	if w.count >= limit {
		return false, w.start.Add(window).Sub(now), nil
	}
	w.count++
	return true, 0, nil
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfterHeader(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return fmt.Sprintf("%d", seconds)
}

func rateLimitKey(scope, key string) string {
	return strings.Join([]string{"ratelimit", scope, key}, ":")
}
