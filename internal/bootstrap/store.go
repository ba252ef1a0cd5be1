package bootstrap

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"go-tablelogger/internal/config"
	"go-tablelogger/internal/database"
	"go-tablelogger/internal/tablestore"
	"go-tablelogger/internal/tablestore/azure"
	"go-tablelogger/internal/tablestore/memory"
	sqlitestore "go-tablelogger/internal/tablestore/sqlite"
)

// OpenTableStore connects the backend named by cfg.TableStoreBackend. The returned close
// function releases whatever the backend holds and is never nil.
func OpenTableStore(cfg *config.Config, logger *zap.Logger) (tablestore.Client, func() error, error) {
	noop := func() error { return nil }

	switch cfg.TableStoreBackend {
	case config.BackendAzure:
		client, err := azure.NewClientFromConnectionString(
			cfg.TableStorageConnectionString,
			cfg.TableStorageTableName,
			azure.WithDateTimeProperties("EventTime"),
			azure.WithLogger(logger),
		)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("Using Azure Table Storage backend", zap.String("table", cfg.TableStorageTableName))
		return client, noop, nil

	case config.BackendSQLite:
		db, err := database.InitSQLite(cfg, logger)
		if err != nil {
			return nil, noop, err
		}
		client, err := sqlitestore.NewClient(db, cfg.TableStorageTableName, logger)
		if err != nil {
			db.Close()
			return nil, noop, err
		}
		logger.Info("Using SQLite table store backend", zap.String("path", cfg.SQLiteDBPath), zap.String("table", cfg.TableStorageTableName))
		return client, func() error {
			return errors.Join(client.Close(), db.Close())
		}, nil

	case config.BackendMemory:
		logger.Warn("Using in-memory table store backend; entries are lost on exit")
		return memory.NewClient(), noop, nil

	default:
		return nil, noop, fmt.Errorf("%w: unknown TABLE_STORE_BACKEND %q", config.ErrInvalidConfig, cfg.TableStoreBackend)
	}
}
