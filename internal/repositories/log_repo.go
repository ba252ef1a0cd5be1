package repositories

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"go-tablelogger/internal/mapping"
	"go-tablelogger/internal/models"
	"go-tablelogger/internal/tablestore"
)

// DefaultLogPartition is listed when a log query names no node.
const DefaultLogPartition = "-1"

// LogRepository stores log records as LogEntities and serves the log queries.
type LogRepository struct {
	*TableRepository[models.LogEntity, *models.LogEntity]
	mapper *mapping.Mapper
	logger *zap.Logger
}

// NewLogRepository creates a LogRepository. logger is the diagnostic stream for ingestion
// failures; it must not be backed by this repository.
func NewLogRepository(client tablestore.Client, tableName string, mapper *mapping.Mapper, logger *zap.Logger) *LogRepository {
	if logger == nil {
		fallbackLogger, _ := zap.NewDevelopment()
		logger = fallbackLogger
		logger.Warn("NewLogRepository received nil logger, using fallback.")
	}
	if mapper == nil {
		mapper = mapping.NewMapper(nil)
	}
	return &LogRepository{
		TableRepository: NewTableRepository[models.LogEntity](client, tableName, DefaultLogPartition, logger),
		mapper:          mapper,
		logger:          logger,
	}
}

// AddMessages maps and stores records. It never fails: problems are reported to the
// diagnostic logger and the remaining records are still written.
func (r *LogRepository) AddMessages(ctx context.Context, records []models.LogRecord) {
	BestEffort(r.logger, "add log messages", func() error {
		return r.addMessages(ctx, records)
	})
}

func (r *LogRepository) addMessages(ctx context.Context, records []models.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	var errs []error
	var order []string
	byPartition := make(map[string][]*models.LogEntity)
	for _, rec := range records {
		entity, err := r.mapper.Map(rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %q from %s: %w", rec.Message, rec.NodeName, err))
			continue
		}
		pk := entity.PartitionKey
		if _, ok := byPartition[pk]; !ok {
			order = append(order, pk)
		}
		byPartition[pk] = append(byPartition[pk], entity)
	}

	stored := 0
	for _, pk := range order {
		entities := byPartition[pk]
		for start := 0; start < len(entities); start += tablestore.MaxBatchSize {
			end := min(start+tablestore.MaxBatchSize, len(entities))
			if err := r.InsertOrReplaceBatch(ctx, entities[start:end]); err != nil {
				errs = append(errs, err)
				continue
			}
			stored += end - start
		}
	}

	r.logger.Debug("Stored log batch",
		zap.Int("received", len(records)),
		zap.Int("stored", stored),
		zap.Int("partitions", len(order)),
	)
	return errors.Join(errs...)
}

// BestEffort runs op and reports its failure, or a panic, to logger instead of the caller.
func BestEffort(logger *zap.Logger, operation string, op func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Best-effort operation panicked", zap.String("operation", operation), zap.Any("panic", rec))
		}
	}()
	if err := op(); err != nil {
		logger.Error("Best-effort operation failed", zap.String("operation", operation), zap.Error(err))
	}
}
