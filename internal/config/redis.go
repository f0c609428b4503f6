package config

// This file defines the Redis client constructor.  Redis backs the optional
// response cache and the rate limiter.  When REDIS_ADDR is unset or the
// server does not answer a ping, no client is returned and both features
// degrade to pass-through.

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisConfig holds the connection parameters for Redis.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:""` // host:port, empty disables Redis
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
	TLS      bool   `env:"REDIS_TLS" env-default:"false"`
}

// LoadRedisConfig reads the REDIS_* variables.
func LoadRedisConfig() (RedisConfig, error) {
	var cfg RedisConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return RedisConfig{}, fmt.Errorf("read redis env: %w", err)
	}
	return cfg, nil
}

// NewRedisClient instantiates a Redis client and pings it with a short
// timeout.  The returned client is nil when Redis is not configured or
// unreachable; the error explains why in the latter case.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// OptionalRedisClient is NewRedisClient for callers that can run without
// Redis.  A failed ping is logged as a warning and yields a nil client.
func OptionalRedisClient(cfg RedisConfig, log *logrus.Logger) *redis.Client {
	client, err := NewRedisClient(cfg)
	if err != nil {
		log.WithError(err).Warn("redis unavailable; response cache and rate limiting disabled")
		return nil
	}
	return client
}
