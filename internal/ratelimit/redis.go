// Package ratelimit throttles status changes with a fixed window in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] counter key, ARGV[1] window in ms, ARGV[2] limit.
// Returns 1 while the counter is within the limit.
var fixedWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n <= tonumber(ARGV[2]) and 1 or 0
`)

const callTimeout = 250 * time.Millisecond

// RedisLimiter allows at most limit status changes per actor within window.
// A nil limiter or a non-positive limit allows everything. Redis failures
// are logged and the call is allowed.
type RedisLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
	log    *slog.Logger
}

// NewRedisLimiter returns nil when rdb is nil.
func NewRedisLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string, logger *slog.Logger) *RedisLimiter {
	if rdb == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		prefix: prefix,
		log:    logger.With("component", "ratelimit"),
	}
}

func (l *RedisLimiter) enabled() bool {
	return l != nil && l.rdb != nil && l.limit > 0 && l.window > 0
}

func (l *RedisLimiter) counterKey(key string) string {
	if l.prefix == "" {
		return key
	}
	return l.prefix + ":" + key
}

// Allow reports whether key may perform one more call in the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	if !l.enabled() || key == "" {
		return true
	}
	ok, err := l.take(ctx, l.counterKey(key))
	if err != nil {
		l.log.WarnContext(ctx, "rate limit check failed, allowing",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return true
	}
	return ok
}

func (l *RedisLimiter) take(ctx context.Context, counter string) (bool, error) {
	ms := max(l.window.Milliseconds(), 1)

	// The counter must move even if the caller gave up on the request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), callTimeout)
	defer cancel()

	n, err := fixedWindow.Run(ctx, l.rdb, []string{counter}, ms, l.limit).Int64()
	if err != nil {
		return false, fmt.Errorf("fixed window script: %w", err)
	}
	return n == 1, nil
}
