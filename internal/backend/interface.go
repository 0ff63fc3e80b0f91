// Package backend builds the data backend and model store selected by
// configuration.
package backend

import (
	"context"

	"spendwise/internal/modelstore"
	"spendwise/internal/ports"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult is a data backend with its cleanup.
type BackendResult struct {
	Backend ports.Repository
	Cleanup CleanupFunc
}

// ModelStoreResult is a model store with its cleanup.
type ModelStoreResult struct {
	Store   modelstore.Store
	Cleanup CleanupFunc
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	CreateModelStore(ctx context.Context, config Config) (*ModelStoreResult, error)
}

// Config holds what the factory needs from the application config.
type Config struct {
	Type BackendType

	SQLiteDBPath  string
	DataDirectory string

	ModelStore      ModelStoreType
	ModelDir        string
	ModelBadgerPath string
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

type ModelStoreType string

const (
	FileModelStore   ModelStoreType = "file"
	BadgerModelStore ModelStoreType = "badger"
)

func (mt ModelStoreType) IsValid() bool {
	return mt == FileModelStore || mt == BadgerModelStore
}
