package database

import (
	"fmt"
	"os"
	"path/filepath"

	"tcm-go/internal/config"
)

// FileName is the name of the catalog database inside data_dir.
const FileName = "catalog.db"

// NewDatabaseFromConfig opens the database selected by cfg.Type. Memory
// databases are migrated immediately since they start empty; file databases
// are migrated explicitly with `tcm db migrate`.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, FileName))
	case "memory":
		db, err := NewSQLiteDatabase(memoryPath)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating memory database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
