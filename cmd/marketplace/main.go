package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/app"
	"github.com/vladislavdragonenkov/marketplace/internal/config"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

func main() {
	cfg := config.MustLoad()
	if err := config.SetupLogger(cfg.Logger); err != nil {
		log.WithError(err).Fatal("invalid logger configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTP.Addr,
		"grpc_addr":    cfg.GRPC.Addr,
		"metrics_addr": cfg.Metrics.Addr,
		"postgres":     cfg.UsePostgres(),
		"kafka":        cfg.KafkaEnabled(),
		"version":      version.GetVersion(),
	}).Info("starting marketplace service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("service exited with error")
	}

	log.Info("marketplace service stopped")
}
