package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/example/ticket-shotgun/internal/api"
	"github.com/example/ticket-shotgun/internal/app"
	"github.com/example/ticket-shotgun/internal/auth"
	"github.com/example/ticket-shotgun/internal/config"
	"github.com/example/ticket-shotgun/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		catalogFile string
		hashSecret  string
		tokenTTL    time.Duration
	)
	flagSet := pflag.NewFlagSet("api", pflag.ContinueOnError)
	flagSet.StringVar(&catalogFile, "catalog", "", "YAML catalogue to load at startup (overrides CATALOG_FILE)")
	flagSet.StringVar(&hashSecret, "hash-callback-secret", "", "print the bcrypt hash of a payment callback secret and exit")
	flagSet.DurationVar(&tokenTTL, "token-ttl", 15*time.Minute, "lifetime of access tokens issued by the service")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if hashSecret != "" {
		hash, err := auth.HashCallbackSecret(hashSecret)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	}

	logger, err := logging.NewLogger("ticket-api")
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireJWTSecret(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []app.Option
	if catalogFile != "" {
		opts = append(opts, app.WithCatalogFile(catalogFile))
	}
	a, err := app.New(ctx, cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Auth.CallbackSecretHash == "" {
		logger.Warn("PAYMENT_CALLBACK_SECRET_HASH is not set, payment callbacks are unauthenticated")
	}

	router := api.NewRouter(api.RouterConfig{
		Handlers:           api.NewHandlers(a.Commands, a.Queries, logger),
		ProfileHandlers:    api.NewProfileHandlers(a.Profiles, logger),
		PaymentHandlers:    api.NewPaymentHandlers(a.Commands, a.Gateway, logger),
		JWTService:         auth.NewJWTService(cfg.Auth.JWTSecret, tokenTTL),
		CallbackSecretHash: cfg.Auth.CallbackSecretHash,
		Logger:             logger,
	})

	// Persist expiries in the background.
	go a.Sweeper.Run(ctx, cfg.Orders.SweepInterval)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server started",
			zap.String("addr", cfg.Server.Addr),
			zap.String("store", cfg.Store.Driver),
			zap.String("payment", cfg.Payment.Provider),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
