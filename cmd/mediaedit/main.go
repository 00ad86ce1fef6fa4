package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/leeforge/mediaedit/app"
	"github.com/leeforge/mediaedit/config"
	"github.com/leeforge/mediaedit/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.DefaultOptions())
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Logging)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting mediaedit",
		zap.String("env", string(config.Mode())),
		zap.String("addr", cfg.Server.Addr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := a.ListenAndServe(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	return nil
}
