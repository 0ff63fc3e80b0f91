package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"spendwise/internal/amqp"
	"spendwise/internal/cli"
	"spendwise/internal/config"
	applog "spendwise/internal/log"
	"spendwise/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting spendwise-worker")

	cfg := config.Load()
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	rt, err := cli.InitRuntime(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backends", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	retrainer := worker.NewRetrainWorker(rt.Models, logger.Logger)

	ctx, done := cli.GracefulShutdown(logger.Logger, shutdownTimeout, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := retrainer.StartupCheck(gctx); err != nil {
			// the consumer keeps running; requests will retry training
			logger.Error("Startup training failed", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		return client.ConsumeWithRetry(gctx, retrainer.HandleRetrainRequest)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
