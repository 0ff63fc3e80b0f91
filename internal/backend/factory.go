package backend

import (
	"context"
	"fmt"
	"log/slog"

	"spendwise/internal/memory"
	"spendwise/internal/modelstore"
	"spendwise/internal/storage"
)

type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(_ context.Context, config Config) (*BackendResult, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return &BackendResult{Backend: repo, Cleanup: repo.Close}, nil

	case MemoryBackend:
		dataDir := config.DataDirectory
		if dataDir == "" {
			dataDir = "data"
		}
		store := memory.NewFromFiles(dataDir)
		f.logger.Info("Initialized memory backend", "data_directory", dataDir)
		return &BackendResult{Backend: store, Cleanup: store.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) CreateModelStore(_ context.Context, config Config) (*ModelStoreResult, error) {
	switch config.ModelStore {
	case FileModelStore:
		store, err := modelstore.NewFileStore(config.ModelDir, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file model store: %w", err)
		}
		f.logger.Info("Initialized file model store", "dir", config.ModelDir)
		return &ModelStoreResult{Store: store, Cleanup: func() error { return nil }}, nil

	case BadgerModelStore:
		store, err := modelstore.OpenBadgerStore(config.ModelBadgerPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize badger model store: %w", err)
		}
		f.logger.Info("Initialized badger model store", "path", config.ModelBadgerPath)
		return &ModelStoreResult{Store: store, Cleanup: store.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported model store type: %s", config.ModelStore)
	}
}
