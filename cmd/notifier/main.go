package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/example/ticket-shotgun/internal/app"
	"github.com/example/ticket-shotgun/internal/config"
	"github.com/example/ticket-shotgun/internal/email"
	"github.com/example/ticket-shotgun/internal/infrastructure/kafka"
	"github.com/example/ticket-shotgun/internal/logging"
	"github.com/example/ticket-shotgun/internal/notification"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := logging.NewLogger("ticket-notifier")
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if cfg.SMTP.Host == "" {
		return errors.New("SMTP_HOST is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The notifier only reads; it must not publish events of its own.
	brokers := cfg.Kafka.Brokers
	cfg.Kafka.Brokers = nil
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	mailer := email.NewService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	handler := notification.NewHandler(mailer, a.Profiles, a.Queries, logger)

	consumer := kafka.NewConsumer(brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, logger)
	defer consumer.Close()

	logger.Info("notifier started",
		zap.Strings("brokers", brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.GroupID),
		zap.String("smtp", fmt.Sprintf("%s:%d", cfg.SMTP.Host, cfg.SMTP.Port)),
	)
	if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutting down")
	return nil
}
