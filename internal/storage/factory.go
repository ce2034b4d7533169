package storage

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/nixlim/genwatch/internal/config"
	"github.com/nixlim/genwatch/internal/state"
)

// NewStore returns the SQLite store for cfg, or an in-memory store when no
// path is configured or the database cannot be opened. The bool reports
// whether history is persistent.
func NewStore(cfg config.StorageConfig, logger *zap.Logger) (state.Store, bool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DBPath == "" {
		return state.NewMemoryStore(), false, nil
	}

	store, err := NewSQLiteStore(ExpandTilde(cfg.DBPath), cfg.RetentionDays, logger)
	if err != nil {
		logger.Warn("SQLite storage unavailable, falling back to in-memory store", zap.Error(err))
		return state.NewMemoryStore(), false, nil
	}
	return store, true, nil
}

func ExpandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
