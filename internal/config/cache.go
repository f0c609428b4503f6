package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// CacheConfig defines settings for the response cache middleware.
// When Enabled is false or no Redis client is configured, caching is
// disabled.  Methods lists the HTTP methods to cache.  KeyStrategy
// determines which parts of the request contribute to the cache key:
// "path", "path_query" (default), "method_path" or "method_path_query".
type CacheConfig struct {
	Enabled      bool          `env:"CACHE_ENABLED" env-default:"false"`
	MethodList   []string      `env:"CACHE_METHODS" env-default:"GET" env-separator:","`
	TTL          time.Duration `env:"CACHE_TTL" env-default:"30s"`
	KeyStrategy  string        `env:"CACHE_KEY_STRATEGY" env-default:"path_query"`
	Prefix       string        `env:"CACHE_PREFIX" env-default:"cache"`
	MaxBodyBytes int           `env:"CACHE_MAX_BODY_BYTES" env-default:"1048576"`

	Methods map[string]bool // derived from MethodList
}

// LoadCacheConfig reads the CACHE_* variables.  All methods are upper-cased.
func LoadCacheConfig() (CacheConfig, error) {
	var cfg CacheConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return CacheConfig{}, fmt.Errorf("read cache env: %w", err)
	}
	cfg.Methods = parseMethods(cfg.MethodList)
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return cfg, nil
}

func parseMethods(list []string) map[string]bool {
	m := map[string]bool{}
	for _, p := range list {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
