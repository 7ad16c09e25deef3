// Package limits throttles demo access: a per-user burst limiter plus a
// daily message quota. The quota counter lives in Redis when configured
// so restarts do not reset it, with an in-memory fallback otherwise.
package limits

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/chimera-dev/chimera/internal/config"
)

// Limiter gates how fast and how often a user may message the bot.
type Limiter struct {
	dailyMax   int
	perSecond  float64
	burst      int
	rdb        *redis.Client
	now        func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	// counts is the in-memory fallback: user -> count for the current day.
	counts map[string]int
	day    string
}

// New creates a limiter from configuration. When cfg.RedisAddr is empty
// the daily quota is tracked in memory only.
func New(cfg config.LimitsConfig) *Limiter {
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	return &Limiter{
		dailyMax:  cfg.DailyMessageLimit,
		perSecond: cfg.MessagesPerSecond,
		burst:     cfg.Burst,
		rdb:       rdb,
		now:       time.Now,
		limiters:  make(map[string]*rate.Limiter),
		counts:    make(map[string]int),
	}
}

// Allow reports whether the user may send another message. A burst
// violation and an exhausted daily quota both deny; the error is non-nil
// only when the quota backend failed.
func (l *Limiter) Allow(ctx context.Context, userID string) (bool, error) {
	if !l.userLimiter(userID).Allow() {
		return false, nil
	}
	if l.dailyMax <= 0 {
		return true, nil
	}

	if l.rdb != nil {
		return l.allowRedis(ctx, userID)
	}
	return l.allowMemory(userID), nil
}

// Close releases the Redis connection if one was opened.
func (l *Limiter) Close() error {
	if l.rdb != nil {
		return l.rdb.Close()
	}
	return nil
}

func (l *Limiter) userLimiter(userID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.perSecond), l.burst)
		l.limiters[userID] = lim
	}
	return lim
}

func (l *Limiter) allowRedis(ctx context.Context, userID string) (bool, error) {
	key := fmt.Sprintf("chimera:daily:%s:%s", userID, l.today())

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("daily counter: %w", err)
	}
	if count == 1 {
		// Key lives long enough to survive clock skew around midnight.
		if err := l.rdb.Expire(ctx, key, 48*time.Hour).Err(); err != nil {
			return false, fmt.Errorf("daily counter expiry: %w", err)
		}
	}
	return count <= int64(l.dailyMax), nil
}

func (l *Limiter) allowMemory(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := l.today()
	if l.day != today {
		l.day = today
		l.counts = make(map[string]int)
	}
	l.counts[userID]++
	return l.counts[userID] <= l.dailyMax
}

func (l *Limiter) today() string {
	return l.now().UTC().Format("2006-01-02")
}
