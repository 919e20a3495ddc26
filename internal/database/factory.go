package database

import (
	"fmt"
	"os"
	"path/filepath"

	"dupx-go/internal/config"
	"dupx-go/internal/dupx"
)

// historyFile is the run history file name inside the data directory.
const historyFile = "dupx.db"

// NewDatabaseFromConfig creates a RunHistory implementation based on the database config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (dupx.RunHistory, error) {
	var path string
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data_dir: %w", err)
		}
		path = filepath.Join(cfg.DataDir, historyFile)
	case "memory":
		path = ":memory:"
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}

	db, err := NewSQLiteDatabase(path)
	if err != nil {
		return nil, err
	}
	return db, nil
}
