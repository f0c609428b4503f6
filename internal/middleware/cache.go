package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/todo-service/internal/config"
)

// recorder tees the response to the client and keeps up to limit bytes of
// the body for storage.
type recorder struct {
	http.ResponseWriter
	status    int
	body      bytes.Buffer
	limit     int64
	truncated bool
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.truncated {
		if r.limit > 0 && int64(r.body.Len()+len(b)) > r.limit {
			r.truncated = true
			r.body.Reset()
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}

// ResponseCache stores successful responses in Redis and drops every
// stored entry on Invalidate.  A nil *ResponseCache, or one without a
// client, passes requests through.
type ResponseCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
}

// NewResponseCache returns nil when caching is disabled or rdb is nil.
func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client) *ResponseCache {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &ResponseCache{cfg: cfg, rdb: rdb}
}

// Build a stable cache key honoring prefix/strategy and the current
// generation.  The request path is used rather than the route template so
// /todos/1 and /todos/2 differ.
func cacheKeyFrom(cfg config.CacheConfig, gen int64, c echo.Context) string {
	r := c.Request()
	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "path":
		parts = append(parts, "path", r.URL.Path)
	case "method_path":
		parts = append(parts, "method", r.Method, "path", r.URL.Path)
	case "method_path_query":
		parts = append(parts, "method", r.Method, "path", r.URL.Path, "q", r.URL.RawQuery)
	default: // "path_query"
		parts = append(parts, "path", r.URL.Path, "q", r.URL.RawQuery)
	}

	tail := strings.Join(parts[1:], ":")
	sum := sha1.Sum([]byte(tail))
	return fmt.Sprintf("%s:%d:%x", parts[0], gen, sum[:])
}

// genKey holds the generation counter.  It sits outside the prefix:*
// pattern so Invalidate never deletes it.
func (rc *ResponseCache) genKey() string { return rc.cfg.Prefix + "-gen" }

func (rc *ResponseCache) generation(ctx context.Context) (int64, error) {
	gen, err := rc.rdb.Get(ctx, rc.genKey()).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

// entry is the stored form of a response.
type entry struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

func encodeEntry(status int, header http.Header, body []byte) ([]byte, error) {
	return json.Marshal(entry{Status: status, Header: header, Body: body})
}

func decodeEntry(bs []byte) (entry, bool) {
	var e entry
	if err := json.Unmarshal(bs, &e); err != nil || e.Status == 0 {
		return entry{}, false
	}
	return e, true
}

// Middleware serves hits from Redis and records 200 responses on a miss.
// Headers are stored with the body so clients see identical formatting.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
	if rc == nil {
		return passThrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			ctx := c.Request().Context()
			// a response computed under an older generation lands on a key
			// no reader will ask for again
			gen, err := rc.generation(ctx)
			if err != nil {
				return next(c)
			}
			key := cacheKeyFrom(rc.cfg, gen, c)

			if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
				if hit, ok := decodeEntry(bs); ok {
					return replay(c, hit)
				}
			}

			rec := &recorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(rc.cfg.MaxBodyBytes)}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || rec.truncated {
				return nil
			}
			if payload, err := encodeEntry(rec.status, c.Response().Header().Clone(), rec.body.Bytes()); err == nil {
				_ = rc.rdb.SetEx(context.WithoutCancel(ctx), key, payload, rc.cfg.TTL).Err()
			}
			return nil
		}
	}
}

func replay(c echo.Context, hit entry) error {
	h := c.Response().Header()
	for k, vals := range hit.Header {
		if perRequestHeader(k) {
			continue
		}
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	h.Set("X-Cache", "HIT")
	c.Response().WriteHeader(hit.Status)
	_, err := c.Response().Write(hit.Body)
	return err
}

// Invalidate bumps the generation, so in-flight misses cannot publish a
// stale entry, then removes every entry under the cache prefix.
func (rc *ResponseCache) Invalidate(ctx context.Context) error {
	if rc == nil {
		return nil
	}
	if err := rc.rdb.Incr(ctx, rc.genKey()).Err(); err != nil {
		return err
	}
	iter := rc.rdb.Scan(ctx, 0, rc.cfg.Prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return rc.rdb.Del(ctx, keys...).Err()
}

// perRequestHeader reports headers that belong to the request being served
// rather than to the cached representation.
func perRequestHeader(k string) bool {
	k = http.CanonicalHeaderKey(k)
	switch {
	case k == "Content-Length", k == "X-Cache", k == echo.HeaderXRequestID, k == "Retry-After":
		return true
	case strings.HasPrefix(k, "X-Ratelimit-"):
		return true
	}
	return false
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
