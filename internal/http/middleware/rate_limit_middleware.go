package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mindgrove/tenant-auth-service/internal/http/response"
)

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter counts hits per key inside a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

type FailureMode string

const (
	// FailOpen lets traffic through when the limiter backend is down;
	// auth endpoints use FailClosed.
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

type localWindow struct {
	count   int
	resetAt time.Time
}

type LocalLimiter struct {
	mu    sync.Mutex
	store map[string]*localWindow
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{store: map[string]*localWindow{}}
}

func (l *LocalLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.store[key]
	if !ok || now.After(w.resetAt) {
		l.store[key] = &localWindow{count: 1, resetAt: now.Add(window)}
		return Decision{Allowed: true}, nil
	}
	if w.count >= limit {
		return Decision{Allowed: false, RetryAfter: time.Until(w.resetAt)}, nil
	}
	w.count++
	return Decision{Allowed: true}, nil
}

// RedisLimiter shares one window across instances via INCR + EXPIRE.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{client: client, prefix: prefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	bucket := time.Now().Unix() / int64(window.Seconds())
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}
	if incr.Val() > int64(limit) {
		ttl, err := l.client.TTL(ctx, redisKey).Result()
		if err != nil {
			ttl = window
		}
		return Decision{Allowed: false, RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true}, nil
}

type RateLimiter struct {
	limiter Limiter
	limit   int
	window  time.Duration
	mode    FailureMode
	keyFunc func(r *http.Request) string
}

func NewRateLimiter(limiter Limiter, limit int, window time.Duration, mode FailureMode) *RateLimiter {
	return &RateLimiter{
		limiter: limiter,
		limit:   limit,
		window:  window,
		mode:    mode,
		keyFunc: clientIPKey,
	}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			decision, err := rl.limiter.Allow(r.Context(), rl.keyFunc(r), rl.limit, rl.window)
			if err != nil {
				if rl.mode == FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				response.Error(w, r, http.StatusServiceUnavailable, "RATE_LIMITER_UNAVAILABLE", "rate limiter unavailable", nil)
				return
			}
			if !decision.Allowed {
				if secs := int(decision.RetryAfter.Seconds()); secs > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(secs))
				}
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
