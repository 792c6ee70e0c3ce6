package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"coursepay/backend/libs/logging"
	"coursepay/backend/services/settlement-service/internal/app"
	"coursepay/backend/services/settlement-service/internal/config"
	"coursepay/backend/services/settlement-service/internal/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger("settlement-service")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	metrics.Register()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to init settlement service", zap.Error(err))
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("settlement service stopped with error", zap.Error(err))
	}
}
