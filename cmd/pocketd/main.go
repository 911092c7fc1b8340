package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/S1riyS/pocketfs/internal/cluster"
	"github.com/S1riyS/pocketfs/internal/config"
	"github.com/S1riyS/pocketfs/pkg/logging"
	"github.com/S1riyS/pocketfs/pkg/logging/slogext"
)

const (
	defaultConfigPath = "configs/config.yaml"
	shutdownTimeout   = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string

	flagSet := pflag.NewFlagSet("pocketd", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the YAML config")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := config.MustLoad(configPath)

	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	// Root context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.MakeContextWithLogger(ctx, logger)

	c, err := cluster.Start(ctx, cfg)
	if err != nil {
		return err
	}

	logger.Info("pocketd is running",
		slog.String("namenode", c.Addr()),
		slog.Int("datanodes", len(c.Datanodes())),
	)

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-c.Done():
		cluster.LogServeError(ctx, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := c.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("Shutdown failed", slogext.Err(err))
		return err
	}
	return nil
}
