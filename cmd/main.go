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

	"meteo-station/internal/app"
	"meteo-station/internal/config"
	"meteo-station/internal/logging"
)

var version = "dev"
var appName = "meteo-station"

// restartDelay is waited out before exiting on a boot failure.
const restartDelay = 3 * time.Second

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	slog.Info("starting",
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed, restarting", "err", err, "delay", restartDelay)
		time.Sleep(restartDelay)
		os.Exit(1)
	}

	slog.Info("shutting down")
}
