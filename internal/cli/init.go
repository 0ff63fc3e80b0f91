// Package cli holds the start-up steps shared by cmd/spendwise,
// cmd/spendwise-worker and cmd/spendctl.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"spendwise/internal/backend"
	"spendwise/internal/config"
	applog "spendwise/internal/log"
	"spendwise/internal/ports"
	"spendwise/internal/services"
)

// SetupLogger installs a text logger at level as slog's default.
func SetupLogger(level, component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(level),
		Component: component,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and exits on validation failure.
func LoadAndValidateConfig(logger *slog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// Runtime is everything the binaries share: data backend, model store and
// the model service over them.
type Runtime struct {
	Repository ports.Repository
	Models     *services.ModelService
	cleanups   []backend.CleanupFunc
}

// InitRuntime builds the configured backends. Close releases them.
func InitRuntime(ctx context.Context, logger *applog.Logger, cfg *config.Config) (*Runtime, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	factory := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger)

	data, err := factory.CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}
	models, err := factory.CreateModelStore(ctx, bcfg)
	if err != nil {
		_ = data.Cleanup()
		return nil, err
	}

	svc := services.NewModelService(models.Store, data.Backend, data.Backend,
		services.WithCacheTTL(cfg.ModelCacheTTL),
		services.WithLogger(logger.WithComponent(applog.ComponentModel).Logger))

	return &Runtime{
		Repository: data.Backend,
		Models:     svc,
		cleanups:   []backend.CleanupFunc{models.Cleanup, data.Cleanup},
	}, nil
}

// Close runs every cleanup and reports the first failure.
func (r *Runtime) Close() error {
	var first error
	for _, cleanup := range r.cleanups {
		if cleanup == nil {
			continue
		}
		if err := cleanup(); err != nil && first == nil {
			first = fmt.Errorf("cleanup: %w", err)
		}
	}
	return first
}

// GracefulShutdown returns a context cancelled on SIGINT/SIGTERM after cleanup
// has run, and a channel closed once shutdown is complete.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		cancel()

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until shutdown has finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
