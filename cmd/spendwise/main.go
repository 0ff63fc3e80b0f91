package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"spendwise/internal/cache"
	"spendwise/internal/cli"
	apphttp "spendwise/internal/http"
	applog "spendwise/internal/log"
)

const (
	shutdownTimeout      = 30 * time.Second
	cacheCleanupInterval = time.Minute
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger.Logger)

	rt, err := cli.InitRuntime(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backends", "error", err,
			"backend", cfg.DataBackend, "model_store", cfg.ModelStore)
		os.Exit(1)
	}

	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	caches.Register(rt.Models.SnapshotCache())
	caches.StartCleanup(cacheCleanupInterval)

	srv := apphttp.NewServer(":"+cfg.Port, rt.Models, rt.Repository, apphttp.Options{
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Logger:             logger,
	})

	ctx, done := cli.GracefulShutdown(logger.Logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		caches.Stop()
		if err := rt.Close(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting spendwise server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"model_store", cfg.ModelStore,
		"model_cache_ttl", cfg.ModelCacheTTL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		_ = rt.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
