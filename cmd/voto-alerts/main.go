package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"voto-alerts/common/logger"
	"voto-alerts/internal/config"
	"voto-alerts/internal/service"

	"go.uber.org/zap"
)

// voto-alerts runs one alert pass and exits. It is started by cron.
func main() {
	os.Exit(run())
}

func run() int {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// 2. Logger
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "voto-alerts", cfg.Log.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	// 3. Stop on SIGINT/SIGTERM; a cancelled run counts as failed
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Backends
	backends, err := service.OpenBackends(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to open backends", zap.Error(err))
		return 1
	}
	defer backends.Close()

	// 5. Run
	svc := service.NewAlertServiceFromConfig(cfg, backends, log)
	if err := svc.Run(ctx); err != nil {
		log.Error("Alerts run failed", zap.Error(err))
		return 1
	}
	return 0
}
