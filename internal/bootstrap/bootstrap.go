package bootstrap

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go-tablelogger/internal/config"
	"go-tablelogger/internal/handlers"
	"go-tablelogger/internal/logging"
	"go-tablelogger/internal/mapping"
	"go-tablelogger/internal/models"
	"go-tablelogger/internal/repositories"
	"go-tablelogger/internal/services"
	"go-tablelogger/internal/tablestore"

	"go.uber.org/zap"
)

const (
	provisionTimeout = 30 * time.Second
	tokenTTL         = 24 * time.Hour
)

// AppComponents holds the initialized components like handlers, processors, and repositories.
type AppComponents struct {
	AuthHandler  *handlers.AuthHandler
	LogHandler   *handlers.LogHandler
	LogProcessor *logging.LogProcessor
	LogRepo      *repositories.LogRepository
}

// NewRowKeys returns the row key generator selected by cfg.RowKeyStrategy.
func NewRowKeys(cfg *config.Config) mapping.RowKeyGenerator {
	if cfg.RowKeyStrategy == config.RowKeysSequence {
		return mapping.NewSequenceRowKeys()
	}
	return mapping.NewRandomRowKeys(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// InitializeStorage provisions the log table and builds the repository and the processor
// that feeds it. fileLogger is the diagnostic stream for both.
func InitializeStorage(cfg *config.Config, fileLogger *zap.Logger, store tablestore.Client) (*repositories.LogRepository, *logging.LogProcessor, error) {
	logRepo := repositories.NewLogRepository(store, cfg.TableStorageTableName, mapping.NewMapper(NewRowKeys(cfg)), fileLogger)

	ctx, cancel := context.WithTimeout(context.Background(), provisionTimeout)
	defer cancel()
	if err := logRepo.EnsureTable(ctx); err != nil {
		return nil, nil, fmt.Errorf("provision log table %q: %w", cfg.TableStorageTableName, err)
	}
	fileLogger.Info("Log table ready", zap.String("table", cfg.TableStorageTableName), zap.String("backend", cfg.TableStoreBackend))

	logProcessor := logging.NewLogProcessor(logRepo, cfg.LogBatchInterval, cfg.LogProcessorBatchSize, fileLogger)
	return logRepo, logProcessor, nil
}

// InitializeAppComponents creates and wires up the services and handlers on top of the
// repository.
func InitializeAppComponents(
	cfg *config.Config,
	fileLogger *zap.Logger,
	logRepo *repositories.LogRepository,
	logProcessor *logging.LogProcessor,
) *AppComponents {
	fileLogger.Info("Initializing application components: Services, Handlers...")

	// --- 1. Initialize Services ---
	admin := models.AdminUser{Username: cfg.AdminUsername, PasswordHash: cfg.AdminPasswordHash}
	authService := services.NewAuthService(admin, cfg.JWTSecret, tokenTTL)
	logService := services.NewLogService(logRepo, fileLogger)
	fileLogger.Info("Services initialized.")

	// --- 2. Initialize Handlers ---
	authHandler := handlers.NewAuthHandler(authService)
	logHandler := handlers.NewLogHandler(logService)
	fileLogger.Info("Handlers initialized.")

	return &AppComponents{
		AuthHandler:  authHandler,
		LogHandler:   logHandler,
		LogProcessor: logProcessor,
		LogRepo:      logRepo,
	}
}
