package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"go-tablelogger/internal/mapping"
	"go-tablelogger/internal/models"
	"go-tablelogger/internal/tablestore"
	"go-tablelogger/internal/tablestore/filter"
)

// ErrInvalidFilter is returned when a caller supplied filter does not parse.
var ErrInvalidFilter = errors.New("invalid filter")

// LogStore is the part of the log repository the administration API reads and deletes through.
type LogStore interface {
	DefaultPartition() string
	GetAll(ctx context.Context, partition string, count int) ([]*models.LogEntity, error)
	GetWithFilter(ctx context.Context, filter, partition string) ([]*models.LogEntity, error)
	GetWithSelectFilter(ctx context.Context, fields []string, filter, partition string) ([]*models.LogEntity, error)
	Get(ctx context.Context, partitionKey, rowKey string) (*models.LogEntity, error)
	Delete(ctx context.Context, entity *models.LogEntity) error
}

// LogSearch narrows a log listing. Zero values leave a criterion out.
type LogSearch struct {
	Partition string
	Filter    string   // raw filter expression, ANDed with the typed criteria
	Fields    []string // projection; empty returns every field
	MinLevel  int
	Since     time.Time
	Until     time.Time
	RequestID string
}

// LogService defines the log administration operations.
type LogService interface {
	List(ctx context.Context, partition string, count int) ([]*models.LogEntity, error)
	Search(ctx context.Context, search LogSearch) ([]*models.LogEntity, error)
	Get(ctx context.Context, partitionKey, rowKey string) (*models.LogEntity, error)
	Delete(ctx context.Context, tableLogger *zap.Logger, partitionKey, rowKey, etag string) error
	Health(ctx context.Context) error
}

type logServiceImpl struct {
	store      LogStore
	fileLogger *zap.Logger
}

// NewLogService creates a new LogService
func NewLogService(store LogStore, fileLogger *zap.Logger) LogService {
	return &logServiceImpl{store: store, fileLogger: fileLogger}
}

func (s *logServiceImpl) List(ctx context.Context, partition string, count int) ([]*models.LogEntity, error) {
	s.fileLogger.Debug("Listing log entries", zap.String("partition", partition), zap.Int("count", count))
	return s.store.GetAll(ctx, partition, count)
}

func (s *logServiceImpl) Search(ctx context.Context, search LogSearch) ([]*models.LogEntity, error) {
	f, err := BuildFilter(search)
	if err != nil {
		return nil, err
	}
	s.fileLogger.Debug("Searching log entries", zap.String("partition", search.Partition), zap.String("filter", f), zap.Strings("select", search.Fields))
	if len(search.Fields) > 0 {
		return s.store.GetWithSelectFilter(ctx, search.Fields, f, search.Partition)
	}
	return s.store.GetWithFilter(ctx, f, search.Partition)
}

func (s *logServiceImpl) Get(ctx context.Context, partitionKey, rowKey string) (*models.LogEntity, error) {
	return s.store.Get(ctx, partitionKey, rowKey)
}

// Delete removes one entry. Without an etag the stored one is fetched first, so the delete
// still fails if the entry changes in between.
func (s *logServiceImpl) Delete(ctx context.Context, tableLogger *zap.Logger, partitionKey, rowKey, etag string) error {
	entity := &models.LogEntity{}
	if etag == "" {
		current, err := s.store.Get(ctx, partitionKey, rowKey)
		if err != nil {
			return err
		}
		entity = current
	} else {
		entity.PartitionKey = partitionKey
		entity.RowKey = rowKey
		entity.ETag = etag
	}
	if err := s.store.Delete(ctx, entity); err != nil {
		return err
	}
	tableLogger.Info("Log entry deleted", zap.String("partition", partitionKey), zap.String("row", rowKey))
	return nil
}

// Health lists a single entry of the default partition to prove the store answers.
func (s *logServiceImpl) Health(ctx context.Context) error {
	_, err := s.store.GetAll(ctx, s.store.DefaultPartition(), 1)
	return err
}

// BuildFilter turns search into one filter expression. The raw filter is checked for syntax
// so a typo is reported as ErrInvalidFilter instead of a storage failure.
func BuildFilter(search LogSearch) (string, error) {
	var conditions []string
	if raw := strings.TrimSpace(search.Filter); raw != "" {
		if _, err := filter.Parse(raw); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		conditions = append(conditions, raw)
	}
	if search.MinLevel > 0 {
		conditions = append(conditions, tablestore.GenerateFilterConditionForInt("LogLevel", tablestore.GreaterThanOrEqual, search.MinLevel))
	}
	if !search.Since.IsZero() {
		conditions = append(conditions, tablestore.GenerateFilterConditionForDate("EventTime", tablestore.GreaterThanOrEqual, search.Since))
	}
	if !search.Until.IsZero() {
		conditions = append(conditions, tablestore.GenerateFilterConditionForDate("EventTime", tablestore.LessThan, search.Until))
	}
	if search.RequestID != "" {
		conditions = append(conditions, tablestore.GenerateFilterCondition(mapping.RequestIDKey, tablestore.Equal, search.RequestID))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	out := conditions[0]
	for _, c := range conditions[1:] {
		out = tablestore.CombineFilters(out, tablestore.And, c)
	}
	return out, nil
}
