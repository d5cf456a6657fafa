// Package ratelimit provides the process-wide request limiters. Two
// mechanisms cover the API surface:
//
//   - a per-client token bucket (golang.org/x/time/rate) as the default
//     limit on every endpoint, and
//   - fixed quota windows ("20 per hour", "100 per day") for the endpoints
//     the API table bounds explicitly.
//
// Windows count in memory by default. When a Redis client is supplied the
// counters move there (atomic INCR with expiry), which is what makes the
// limits hold across horizontally scaled workers.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Rule is one quota window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// PerHour and PerDay build the common rules.
func PerHour(n int) Rule { return Rule{Limit: n, Window: time.Hour} }
func PerDay(n int) Rule  { return Rule{Limit: n, Window: 24 * time.Hour} }

// Per builds a rule over an arbitrary window.
func Per(n int, window time.Duration) Rule { return Rule{Limit: n, Window: window} }

// Limiter enforces default and per-endpoint limits.
type Limiter struct {
	redis *redis.Client // nil = in-memory
	clock clockwork.Clock

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	windows map[string]*windowCounter
}

type windowCounter struct {
	start time.Time
	count int
}

// DefaultRate is the baseline per-client limit applied to endpoints without
// explicit rules: 50 requests/hour sustained with a burst of 20.
var DefaultRate = rate.Every(time.Hour / 50)

const defaultBurst = 20

// New creates a limiter. redisClient may be nil for in-memory counting.
func New(redisClient *redis.Client) *Limiter {
	return NewWithClock(redisClient, clockwork.NewRealClock())
}

// NewWithClock creates a limiter on the given clock.
func NewWithClock(redisClient *redis.Client, clock clockwork.Clock) *Limiter {
	return &Limiter{
		redis:   redisClient,
		clock:   clock,
		buckets: map[string]*rate.Limiter{},
		windows: map[string]*windowCounter{},
	}
}

// AllowDefault applies the baseline token bucket for a client key.
func (l *Limiter) AllowDefault(key string) bool {
	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(DefaultRate, defaultBurst)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()
	return bucket.Allow()
}

// Allow checks every rule for the key, consuming one unit from each. It
// returns false with a retry-after hint when any rule is exhausted.
func (l *Limiter) Allow(ctx context.Context, name, key string, rules ...Rule) (bool, time.Duration) {
	for _, rule := range rules {
		ok, retryAfter := l.allowRule(ctx, name, key, rule)
		if !ok {
			return false, retryAfter
		}
	}
	return true, 0
}

func (l *Limiter) allowRule(ctx context.Context, name, key string, rule Rule) (bool, time.Duration) {
	now := l.clock.Now()
	bucketStart := now.Truncate(rule.Window)
	bucketKey := fmt.Sprintf("ratelimit:%s:%s:%d:%d", name, key, rule.Window/time.Second, bucketStart.Unix())

	if l.redis != nil {
		count, err := l.redis.Incr(ctx, bucketKey).Result()
		if err != nil {
			// A broken limiter store must not take the API down.
			return true, 0
		}
		if count == 1 {
			l.redis.Expire(ctx, bucketKey, rule.Window)
		}
		if int(count) > rule.Limit {
			return false, bucketStart.Add(rule.Window).Sub(now)
		}
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[bucketKey]
	if !ok {
		l.pruneLocked(now)
		w = &windowCounter{start: bucketStart}
		l.windows[bucketKey] = w
	}
	w.count++
	if w.count > rule.Limit {
		return false, bucketStart.Add(rule.Window).Sub(now)
	}
	return true, 0
}

// pruneLocked drops windows that started more than 25 hours ago.
func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-25 * time.Hour)
	for key, w := range l.windows {
		if w.start.Before(cutoff) {
			delete(l.windows, key)
		}
	}
}
