package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voto-alerts/common/logger"
	"voto-alerts/internal/config"
	"voto-alerts/internal/service"

	"go.uber.org/zap"
)

// voto-redial places a second call to everybody whose alert call failed.
// It is started by cron shortly after voto-alerts.
func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "voto-redial", cfg.Log.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// let the alert run place its calls first
	select {
	case <-ctx.Done():
		return 1
	case <-time.After(cfg.Redial.StartDelay):
	}

	backends, err := service.OpenBackends(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to open backends", zap.Error(err))
		return 1
	}
	defer backends.Close()

	redialer := service.NewRedialerFromConfig(cfg, backends, log)
	placed, err := redialer.Run(ctx)
	if err != nil {
		log.Error("Redial failed", zap.Int("placed", placed), zap.Error(err))
		return 1
	}
	log.Info("Redial complete", zap.Int("placed", placed))
	if cfg.Metrics.PushgatewayURL != "" {
		if err := backends.Metrics.Push(ctx, cfg.Metrics.PushgatewayURL, "voto-redial"); err != nil {
			log.Warn("Failed to push metrics", zap.Error(err))
		}
	}
	return 0
}
