package config

import (
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/todos")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindAddress != "127.0.0.1:3000" {
		t.Errorf("BindAddress = %q", cfg.BindAddress)
	}
	if cfg.DBMaxConns != 5 {
		t.Errorf("DBMaxConns = %d", cfg.DBMaxConns)
	}
	if cfg.UpdateMode != UpdateReplace {
		t.Errorf("UpdateMode = %q", cfg.UpdateMode)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %s", cfg.ShutdownTimeout)
	}
	if cfg.EventsQueue != "todo.events" {
		t.Errorf("EventsQueue = %q", cfg.EventsQueue)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoadUpdateMode(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/todos")

	t.Setenv("TODO_UPDATE_MODE", " Merge ")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UpdateMode != UpdateMerge {
		t.Fatalf("UpdateMode = %q", cfg.UpdateMode)
	}

	t.Setenv("TODO_UPDATE_MODE", "patch")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown update mode")
	}
}

func TestLoadRejectsEmptyPool(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/todos")
	t.Setenv("DB_MAX_CONNS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for DB_MAX_CONNS=0")
	}
}

func TestCacheMethods(t *testing.T) {
	t.Setenv("CACHE_ENABLED", "true")
	t.Setenv("CACHE_METHODS", "get, head,,")

	cfg, err := LoadCacheConfig()
	if err != nil {
		t.Fatalf("LoadCacheConfig: %v", err)
	}
	if !cfg.Enabled {
		t.Error("expected cache enabled")
	}
	if len(cfg.Methods) != 2 || !cfg.Methods["GET"] || !cfg.Methods["HEAD"] {
		t.Fatalf("Methods = %v", cfg.Methods)
	}
}

func TestRateLimitNormalize(t *testing.T) {
	c := RateLimitConfig{Capacity: 0, RefillTokens: -1, RefillInterval: 2 * time.Second, TTL: time.Second}
	c.normalize()
	if c.Capacity != 1 || c.RefillTokens != 1 {
		t.Errorf("capacity/refill not clamped: %+v", c)
	}
	if c.TTL != 10*time.Second {
		t.Errorf("TTL = %s, want 10s", c.TTL)
	}
}

func TestNewRedisClientWithoutAddr(t *testing.T) {
	rdb, err := NewRedisClient(RedisConfig{})
	if rdb != nil || err != nil {
		t.Fatalf("expected nil client and nil error, got %v %v", rdb, err)
	}
}

func TestOptionalRedisClientDegradesWhenUnreachable(t *testing.T) {
	var logs strings.Builder
	log := logrus.New()
	log.SetOutput(&logs)

	// nothing listens on port 1
	if rdb := OptionalRedisClient(RedisConfig{Addr: "127.0.0.1:1"}, log); rdb != nil {
		t.Fatal("expected nil client for unreachable redis")
	}
	if !strings.Contains(logs.String(), "redis unavailable") {
		t.Fatalf("expected a warning, got %q", logs.String())
	}

	logs.Reset()
	if rdb := OptionalRedisClient(RedisConfig{}, log); rdb != nil {
		t.Fatal("expected nil client without REDIS_ADDR")
	}
	if logs.Len() != 0 {
		t.Fatalf("unconfigured redis must not warn, got %q", logs.String())
	}
}
