package middleware

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/todo-service/internal/config"
)

func TestTokenBucketBlocksWhenEmpty(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}

	e := echo.New()
	e.Use(NewRateLimiter(cfg, rdb, quietLog()).Middleware())
	e.GET("/todos", func(c echo.Context) error { return c.String(http.StatusOK, "[]") })

	for i, wantRemaining := range []string{"1", "0"} {
		rec := serve(e, http.MethodGet, "/todos")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != wantRemaining {
			t.Errorf("request %d: expected remaining %s, got %q", i, wantRemaining, got)
		}
	}

	rec := serve(e, http.MethodGet, "/todos")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After 60, got %q", got)
	}
}

func TestTokenBucketWithoutRedisPassesThrough(t *testing.T) {
	e := echo.New()
	e.Use(NewRateLimiter(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, quietLog()).Middleware())
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	for i := 0; i < 3; i++ {
		if rec := serve(e, http.MethodGet, "/"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := newRequest(http.MethodGet, "/todos/5")
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, nil)
	c.SetPath("/todos/:id")

	cases := map[string]string{
		"ip":       "rl:ip:10.0.0.1",
		"route":    "rl:route:GET /todos/:id",
		"ip_route": "rl:ip:10.0.0.1:route:GET /todos/:id",
		"":         "rl:ip:10.0.0.1:route:GET /todos/:id",
	}
	for strategy, want := range cases {
		got := rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
		if got != want {
			t.Errorf("strategy %q: expected %q, got %q", strategy, want, got)
		}
	}
}

func TestRetrySecondsRoundsUp(t *testing.T) {
	cases := map[time.Duration]int{0: 0, -time.Second: 0, time.Millisecond: 1, time.Second: 1, 1500 * time.Millisecond: 2}
	for d, want := range cases {
		if got := retrySeconds(d); got != want {
			t.Errorf("retrySeconds(%s) = %d, want %d", d, got, want)
		}
	}
}

func TestBucketRefillsAfterInterval(t *testing.T) {
	_, rdb := newRedis(t)
	rl := NewRateLimiter(config.RateLimitConfig{
		Enabled: true, Capacity: 1, RefillTokens: 1,
		RefillInterval: 50 * time.Millisecond, TTL: time.Minute, Prefix: "rl",
	}, rdb, quietLog())
	ctx := context.Background()

	if b, err := rl.take(ctx, "rl:k"); err != nil || !b.allowed {
		t.Fatalf("first take: %+v %v", b, err)
	}
	if b, _ := rl.take(ctx, "rl:k"); b.allowed {
		t.Fatal("second take should be rejected")
	}
	time.Sleep(60 * time.Millisecond)
	if b, err := rl.take(ctx, "rl:k"); err != nil || !b.allowed {
		t.Fatalf("take after refill: %+v %v", b, err)
	}
}

func quietLog() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
