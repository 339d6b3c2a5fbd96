package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/example/ticket-shotgun/internal/app"
	"github.com/example/ticket-shotgun/internal/config"
	"github.com/example/ticket-shotgun/internal/email"
	"github.com/example/ticket-shotgun/internal/infrastructure/kinesis"
	"github.com/example/ticket-shotgun/internal/logging"
	"github.com/example/ticket-shotgun/internal/notification"
)

var (
	notificationHandler *notification.Handler
	logger              *zap.Logger
)

func init() {
	var err error
	logger, err = logging.NewLogger("ticket-notifier-lambda")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	// The journal stream feeds this function; it never writes events.
	cfg.Store.JournalTable = ""
	cfg.Kafka.Brokers = nil

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise", zap.Error(err))
	}

	mailer := email.NewService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	notificationHandler = notification.NewHandler(mailer, a.Profiles, a.Queries, logger)
	logger.Info("initialized", zap.String("smtp_host", cfg.SMTP.Host), zap.String("store", cfg.Store.Driver))
}

func handler(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	logger.Info("received records", zap.Int("count", len(kinesisEvent.Records)))

	var batchItemFailures []events.KinesisBatchItemFailure
	fail := func(record events.KinesisEventRecord) {
		batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{
			ItemIdentifier: record.Kinesis.SequenceNumber,
		})
	}

	for _, record := range kinesisEvent.Records {
		event, err := kinesis.EventFromKinesisRecord(record)
		if err != nil {
			logger.Warn("failed to convert record", zap.String("record_id", record.EventID), zap.Error(err))
			fail(record)
			continue
		}

		// Skip non-INSERT events
		if event == nil {
			continue
		}

		if err := notificationHandler.Handle(ctx, *event); err != nil {
			logger.Error("failed to process event", zap.String("event_id", event.ID), zap.Error(err))
			fail(record)
		}
	}

	logger.Info("batch processed",
		zap.Int("succeeded", len(kinesisEvent.Records)-len(batchItemFailures)),
		zap.Int("total", len(kinesisEvent.Records)),
	)
	return events.KinesisEventResponse{BatchItemFailures: batchItemFailures}, nil
}

func main() {
	lambda.Start(handler)
}
