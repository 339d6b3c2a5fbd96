// Package app wires the order stack from configuration. Every binary builds
// the same graph and uses the parts it needs.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"github.com/example/ticket-shotgun/internal/catalog"
	"github.com/example/ticket-shotgun/internal/command"
	"github.com/example/ticket-shotgun/internal/config"
	"github.com/example/ticket-shotgun/internal/expiry"
	"github.com/example/ticket-shotgun/internal/fulfillment"
	"github.com/example/ticket-shotgun/internal/infrastructure/kafka"
	"github.com/example/ticket-shotgun/internal/infrastructure/store"
	"github.com/example/ticket-shotgun/internal/payment"
	"github.com/example/ticket-shotgun/internal/profile"
	"github.com/example/ticket-shotgun/internal/query"
	"github.com/example/ticket-shotgun/internal/validation"
)

// Gateway is a payment gateway that also verifies its own callbacks.
type Gateway interface {
	payment.Gateway
	payment.CallbackParser
}

type App struct {
	Config    config.Config
	Store     store.Store
	Events    store.EventSink
	Gateway   Gateway
	Commands  *command.Handler
	Queries   *query.Handler
	Profiles  *profile.Service
	Sweeper   *expiry.Sweeper
	Validator *validation.Validator

	db      *sql.DB
	closers []func() error
	logger  *zap.Logger
}

type Option func(*options)

type options struct {
	catalogFile string
	events      []store.EventSink
	profiles    profile.LocalStore
}

// WithCatalogFile overrides the catalogue file from configuration.
func WithCatalogFile(path string) Option {
	return func(o *options) { o.catalogFile = path }
}

// WithEventSink adds a sink next to the ones configuration enables.
func WithEventSink(sink store.EventSink) Option {
	return func(o *options) { o.events = append(o.events, sink) }
}

// WithProfiles replaces the configured profile store.
func WithProfiles(local profile.LocalStore) Option {
	return func(o *options) { o.profiles = local }
}

// New builds the application. Close releases what it opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{catalogFile: cfg.Store.CatalogFile}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, logger: logger}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openEvents(ctx, o.events); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openGateway(); err != nil {
		a.Close()
		return nil, err
	}

	if o.catalogFile != "" {
		file, err := catalog.LoadFile(o.catalogFile)
		if err == nil {
			err = file.Apply(ctx, a.Store)
		}
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load catalogue %s: %w", o.catalogFile, err)
		}
		logger.Info("catalogue loaded", zap.String("file", o.catalogFile), zap.Int("sales", len(file.Sales)))
	}

	local := o.profiles
	if local == nil {
		if a.db != nil {
			local = profile.NewPostgresStore(a.db)
		} else {
			local = profile.NewStaticStore()
		}
	}
	a.Profiles = profile.NewService(local, profile.WithLogger(logger))

	timeouts := cfg.Orders.Timeouts
	retries, backoff := cfg.Orders.ConflictRetries, cfg.Orders.ConflictBackoff
	a.Validator = validation.NewValidator(timeouts, validation.WithLogger(logger))
	fulfillSvc := fulfillment.NewService(a.Store, a.Events, fulfillment.Config{
		Timeouts: timeouts,
		Attempts: retries,
		Backoff:  backoff,
	}, fulfillment.WithLogger(logger))
	a.Commands = command.NewHandler(a.Store, a.Validator, fulfillSvc, a.Gateway, a.Events,
		command.Config{Attempts: retries, Backoff: backoff}, logger)
	a.Queries = query.NewHandler(a.Store, timeouts, nil)
	a.Sweeper = expiry.NewSweeper(a.Store, a.Events, expiry.Config{
		Timeouts: timeouts,
		Attempts: retries,
		Backoff:  backoff,
	}, expiry.WithLogger(logger))
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Store.Driver {
	case "postgres":
		db, err := store.ConnectPostgres(a.Config.Store.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
		if err := store.EnsureSchema(ctx, db); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		a.Store = store.NewPostgresStore(db)
		a.logger.Info("connected to PostgreSQL")
	default:
		a.Store = store.NewMemoryStore()
		a.logger.Info("using in-memory store")
	}
	return nil
}

func (a *App) openEvents(ctx context.Context, extra []store.EventSink) error {
	sinks := store.MultiSink(extra)
	if table := a.Config.Store.JournalTable; table != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		sinks = append(sinks, store.NewDynamoJournal(dynamodb.NewFromConfig(awsCfg), table))
		a.logger.Info("journaling events to DynamoDB", zap.String("table", table))
	}
	if brokers := a.Config.Kafka.Brokers; len(brokers) > 0 {
		producer := kafka.NewProducer(brokers, a.Config.Kafka.Topic)
		a.closers = append(a.closers, producer.Close)
		sinks = append(sinks, producer)
		a.logger.Info("publishing events to Kafka", zap.Strings("brokers", brokers), zap.String("topic", a.Config.Kafka.Topic))
	}

	switch len(sinks) {
	case 0:
		a.Events = store.NopSink{}
	case 1:
		a.Events = sinks[0]
	default:
		a.Events = sinks
	}
	return nil
}

func (a *App) openGateway() error {
	p := a.Config.Payment
	if p.Provider == "stripe" {
		gw, err := payment.NewStripeGateway(payment.StripeConfig{
			APIKey:        p.StripeAPIKey,
			WebhookSecret: p.StripeWebhookSecret,
			Currency:      p.Currency,
			SuccessURL:    p.SuccessURL,
			CancelURL:     p.CancelURL,
			Logger:        a.logger,
		})
		if err != nil {
			return err
		}
		a.Gateway = gw
		return nil
	}
	a.Gateway = payment.NewManualGateway(p.BaseURL, a.logger)
	return nil
}

// DB is the PostgreSQL handle, nil with the memory store.
func (a *App) DB() *sql.DB {
	return a.db
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
