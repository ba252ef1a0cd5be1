package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite Driver
	"go.uber.org/zap"

	"go-tablelogger/internal/config"
	sqlitestore "go-tablelogger/internal/tablestore/sqlite"
)

// InitSQLite opens the local table store database and ensures its schema exists.
// The directory holding the database file is created when missing.
func InitSQLite(cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	logger.Info("Initializing SQLite table store...", zap.String("requested_path", cfg.SQLiteDBPath))

	dbDir := filepath.Dir(cfg.SQLiteDBPath)
	if dbDir != "." && dbDir != "/" {
		if _, err := os.Stat(dbDir); os.IsNotExist(err) {
			logger.Info("SQLite database directory does not exist, creating...", zap.String("path", dbDir))
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				logger.Error("Failed to create SQLite database directory", zap.String("path", dbDir), zap.Error(err))
				return nil, fmt.Errorf("failed to create sqlite db directory %s: %w", dbDir, err)
			}
		} else if err != nil {
			logger.Error("Failed to check status of SQLite database directory", zap.String("path", dbDir), zap.Error(err))
			return nil, fmt.Errorf("failed to check status of sqlite db directory %s: %w", dbDir, err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.SQLiteDBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		logger.Error("Failed to open SQLite database", zap.String("path", cfg.SQLiteDBPath), zap.Error(err))
		return nil, fmt.Errorf("failed to open sqlite database at %s: %w", cfg.SQLiteDBPath, err)
	}

	// One writer keeps batches serialized; SQLite would otherwise return SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		logger.Error("Failed to ping SQLite database after open", zap.Error(err))
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if _, err := db.Exec(sqlitestore.Schema); err != nil {
		db.Close()
		logger.Error("Failed to create table store schema in SQLite", zap.Error(err))
		return nil, fmt.Errorf("failed to create sqlite table store schema: %w", err)
	}
	logger.Debug("SQLite table store schema verified/created.")

	logger.Info("SQLite table store initialized successfully", zap.String("path", cfg.SQLiteDBPath))
	return db, nil
}
