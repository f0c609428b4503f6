package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/todo-service/internal/config"
)

// takeToken refills the bucket stored at KEYS[1] by whole intervals and
// then takes one token.  Returns {allowed, remaining, retry_after_ms}.
var takeToken = redis.NewScript(`
local capacity  = tonumber(ARGV[2])
local refill    = tonumber(ARGV[3])
local every_ms  = tonumber(ARGV[4])
local now       = tonumber(ARGV[1])

local b = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens, ts = tonumber(b[1]), tonumber(b[2])
if not tokens or not ts then
  tokens, ts = capacity, now
end

local steps = math.floor(math.max(0, now - ts) / every_ms)
if steps > 0 then
  tokens = math.min(capacity, tokens + steps * refill)
  ts = ts + steps * every_ms
end

local ok, wait = 0, 0
if tokens >= 1 then
  ok, tokens = 1, tokens - 1
else
  wait = math.max(0, every_ms - (now - ts))
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', ts)
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {ok, tokens, wait}
`)

// RateLimiter is a per-key token bucket kept in Redis.
type RateLimiter struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
	log *logrus.Logger
}

// NewRateLimiter returns nil when limiting is disabled or rdb is nil.
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client, log *logrus.Logger) *RateLimiter {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	return &RateLimiter{cfg: cfg, rdb: rdb, log: log}
}

type bucket struct {
	allowed    bool
	remaining  int64
	retryAfter time.Duration
}

func (rl *RateLimiter) take(ctx context.Context, key string) (bucket, error) {
	res, err := takeToken.Run(ctx, rl.rdb, []string{key},
		time.Now().UnixMilli(),
		rl.cfg.Capacity,
		rl.cfg.RefillTokens,
		rl.cfg.RefillInterval.Milliseconds(),
		rl.cfg.TTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return bucket{}, err
	}
	if len(res) != 3 {
		return bucket{}, fmt.Errorf("rate limit script returned %d values", len(res))
	}
	return bucket{
		allowed:    res[0] == 1,
		remaining:  res[1],
		retryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// Middleware rejects requests with 429 once the caller's bucket is empty.
// A nil limiter, or a Redis failure, lets every request through.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	if rl == nil {
		return passThrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(rl.cfg, c)
			b, err := rl.take(c.Request().Context(), key)
			if err != nil {
				rl.log.WithError(err).WithField("key", key).Warn("rate limiter unavailable")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(b.remaining, 10))
			if rl.cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if !b.allowed {
				h.Set("Retry-After", strconv.Itoa(retrySeconds(b.retryAfter)))
				return c.String(http.StatusTooManyRequests, "Too Many Requests")
			}
			return next(c)
		}
	}
}

// retrySeconds rounds up so clients never retry early.
func retrySeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// rateKey identifies the bucket.  Routes use the matched template so
// /todos/1 and /todos/2 share one bucket.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.Request().Method + " " + c.Path()

	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		return cfg.Prefix + ":ip:" + ip
	case "route":
		return cfg.Prefix + ":route:" + route
	default:
		return cfg.Prefix + ":ip:" + ip + ":route:" + route
	}
}
