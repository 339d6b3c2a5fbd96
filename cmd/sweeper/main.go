package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/example/ticket-shotgun/internal/app"
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
		once     bool
		interval time.Duration
	)
	flagSet := pflag.NewFlagSet("sweeper", pflag.ContinueOnError)
	flagSet.BoolVar(&once, "once", false, "sweep a single time and exit")
	flagSet.DurationVar(&interval, "interval", 0, "time between sweeps (overrides SWEEP_INTERVAL)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger, err := logging.NewLogger("ticket-sweeper")
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if interval <= 0 {
		interval = cfg.Orders.SweepInterval
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if once {
		n, err := a.Sweeper.Sweep(ctx)
		logger.Info("sweep finished", zap.Int("expired", n))
		return err
	}
	a.Sweeper.Run(ctx, interval)
	return nil
}
