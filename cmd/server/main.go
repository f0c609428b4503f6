package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/todo-service/internal/config"
	"github.com/iliyamo/todo-service/internal/database"
	"github.com/iliyamo/todo-service/internal/handler"
	"github.com/iliyamo/todo-service/internal/logger"
	"github.com/iliyamo/todo-service/internal/middleware"
	"github.com/iliyamo/todo-service/internal/queue"
	"github.com/iliyamo/todo-service/internal/repository"
	"github.com/iliyamo/todo-service/internal/router"
	"github.com/iliyamo/todo-service/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logger.New("todo-service", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := database.RegisterPoolMetrics(reg, pool); err != nil {
		log.WithError(err).Fatal("register pool metrics")
	}

	// Redis is optional; without it caching and rate limiting are off.
	redisCfg, err := config.LoadRedisConfig()
	if err != nil {
		log.WithError(err).Fatal("load redis config")
	}
	rdb := config.OptionalRedisClient(redisCfg, log)
	if rdb != nil {
		defer rdb.Close()
	}
	cacheCfg, err := config.LoadCacheConfig()
	if err != nil {
		log.WithError(err).Fatal("load cache config")
	}
	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		log.WithError(err).Fatal("load rate limit config")
	}
	cache := middleware.NewResponseCache(cacheCfg, rdb)

	var repo *repository.TodoRepo
	if cfg.UpdateMode == config.UpdateMerge {
		repo = repository.NewMergingTodoRepo(pool)
	} else {
		repo = repository.NewTodoRepo(pool)
	}

	// interfaces stay nil unless the feature is configured
	var events service.EventPublisher
	if cfg.RabbitMQURL != "" {
		pub := queue.NewPublisher(cfg.RabbitMQURL, cfg.EventsQueue, log)
		defer pub.Close()
		events = pub
	}
	var invalidator service.CacheInvalidator
	if cache != nil {
		invalidator = cache
	}

	svc := service.NewTodoService(repo, events, invalidator, log)
	e := router.New(router.Deps{
		Log:       log,
		Todos:     handler.NewTodoHandler(svc, log),
		Health:    &handler.HealthHandler{DB: pool},
		Metrics:   middleware.NewMetrics(reg),
		Gatherer:  reg,
		Cache:     cache,
		RateLimit: middleware.NewRateLimiter(rlCfg, rdb, log).Middleware(),
	})

	go func() {
		log.WithFields(logrus.Fields{
			"addr":        cfg.BindAddress,
			"env":         cfg.Env,
			"update_mode": cfg.UpdateMode,
			"cache":       cache != nil,
			"events":      events != nil,
		}).Info("listening")
		if err := e.Start(cfg.BindAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
