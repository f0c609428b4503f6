package main // audit log consumer for todo lifecycle events

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/todo-service/internal/config"
	"github.com/iliyamo/todo-service/internal/logger"
	"github.com/iliyamo/todo-service/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAudit()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logger.New("todo-auditlog", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := &queue.AuditConsumer{
		URL:     cfg.RabbitMQURL,
		Queue:   cfg.EventsQueue,
		LogPath: cfg.LogPath,
		Log:     log,
	}
	log.WithFields(logrus.Fields{"queue": cfg.EventsQueue, "path": cfg.LogPath}).Info("audit consumer started")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("audit consumer stopped")
	}
	log.Info("audit consumer stopped")
}
