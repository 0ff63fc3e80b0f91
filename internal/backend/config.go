package backend

import (
	"fmt"

	"spendwise/internal/config"
)

// FromAppConfig converts the application config to backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		Type:            BackendType(appConfig.DataBackend),
		SQLiteDBPath:    appConfig.SQLiteDBPath,
		DataDirectory:   appConfig.MemorySeedDir,
		ModelStore:      ModelStoreType(appConfig.ModelStore),
		ModelDir:        appConfig.ModelDir,
		ModelBadgerPath: appConfig.ModelBadgerPath,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}

	switch c.ModelStore {
	case FileModelStore:
		if c.ModelDir == "" {
			return fmt.Errorf("model directory is required for file model store")
		}
	case BadgerModelStore:
		if c.ModelBadgerPath == "" {
			return fmt.Errorf("badger path is required for badger model store")
		}
	default:
		return fmt.Errorf("invalid model store type: %s", c.ModelStore)
	}
	return nil
}

// GetBackendTypeStrings lists the accepted DATA_BACKEND values.
func GetBackendTypeStrings() []string {
	return []string{SQLiteBackend.String(), MemoryBackend.String()}
}
