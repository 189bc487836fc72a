package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/llm-freight-intake/internal/adapters/store"
	"github.com/mikey/llm-freight-intake/internal/config"
	"github.com/mikey/llm-freight-intake/internal/core"
	"go.uber.org/zap"
)

// Store is a repository with a background cleanup task to stop
type Store interface {
	core.Repository
	Stop()
}

// StoreFactory creates repositories based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore creates the repository selected by store.type
func (f *StoreFactory) CreateStore() (Store, error) {
	storeCfg := f.cfg.GetStore()
	window := f.cfg.GetIntake().MatchWindow

	switch storeCfg.Type {
	case "memory":
		return store.NewMemoryStore(f.logger, storeCfg.CleanupFrequency, window), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(storeCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return store.NewSQLiteStore(storeCfg.SQLitePath, f.logger, storeCfg.CleanupFrequency, window)
	case "mysql":
		return store.NewMySQLStore(storeCfg.MySQLDSN, f.logger, storeCfg.CleanupFrequency, window)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
}
