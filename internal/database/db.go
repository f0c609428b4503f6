package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Open builds a pgx connection pool for the given postgres URL and verifies
// it with a ping.  maxConns bounds the number of live connections; excess
// requests wait for a connection to be released.
func Open(ctx context.Context, url string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("pg parse config: %w", err)
	}

	// Pool settings
	cfg.MaxConns = int32(maxConns)
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}

	// Ping with timeout
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}
	return pool, nil
}

// StatSource is the subset of *pgxpool.Pool used for metrics.
type StatSource interface {
	Stat() *pgxpool.Stat
}

// RegisterPoolMetrics exposes the pool's connection counts as gauges.
func RegisterPoolMetrics(reg prometheus.Registerer, pool StatSource) error {
	gauges := []struct {
		name, help string
		value      func(*pgxpool.Stat) float64
	}{
		{"db_pool_total_conns", "Connections currently held by the pool", func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }},
		{"db_pool_acquired_conns", "Connections currently checked out", func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }},
		{"db_pool_idle_conns", "Idle connections in the pool", func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }},
		{"db_pool_max_conns", "Configured pool ceiling", func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }},
	}
	for _, g := range gauges {
		value := g.value
		gf := prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: g.name, Help: g.help}, func() float64 {
			return value(pool.Stat())
		})
		if err := reg.Register(gf); err != nil {
			return fmt.Errorf("register %s: %w", g.name, err)
		}
	}
	return nil
}
