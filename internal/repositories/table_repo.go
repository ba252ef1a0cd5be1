package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"go-tablelogger/internal/tablestore"
)

// TableRepository is the CRUD and query layer over one partitioned table. T is the entity
// struct; PT is its pointer type, which exposes the identity through tablestore.Entity.
type TableRepository[T any, PT interface {
	*T
	tablestore.Entity
}] struct {
	client           tablestore.Client
	tableName        string
	defaultPartition string
	logger           *zap.Logger
}

// NewTableRepository binds a repository to an open table client.
func NewTableRepository[T any, PT interface {
	*T
	tablestore.Entity
}](client tablestore.Client, tableName, defaultPartition string, logger *zap.Logger) *TableRepository[T, PT] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableRepository[T, PT]{
		client:           client,
		tableName:        tableName,
		defaultPartition: defaultPartition,
		logger:           logger,
	}
}

// TableName returns the name of the backing table.
func (r *TableRepository[T, PT]) TableName() string { return r.tableName }

// DefaultPartition is used by the listing operations when no partition is given.
func (r *TableRepository[T, PT]) DefaultPartition() string { return r.defaultPartition }

// EnsureTable creates the table if it does not exist yet.
func (r *TableRepository[T, PT]) EnsureTable(ctx context.Context) error {
	if err := r.client.CreateTableIfNotExists(ctx); err != nil {
		r.logger.Error("Failed to provision table", zap.String("table", r.tableName), zap.Error(err))
		return fmt.Errorf("ensure table %s: %w", r.tableName, err)
	}
	r.logger.Debug("Table verified/created", zap.String("table", r.tableName))
	return nil
}

// InsertOrReplaceBatch upserts entities in one store transaction. Entities with the same
// identity collapse to the last one in the slice. The store decides what happens to a
// batch spanning partitions; every shipped store rejects it. Failures are not retried.
func (r *TableRepository[T, PT]) InsertOrReplaceBatch(ctx context.Context, entities []PT) error {
	if len(entities) == 0 {
		return nil
	}

	type identity struct{ pk, rk string }
	index := make(map[identity]int, len(entities))
	ops := make([]tablestore.BatchOperation, 0, len(entities))
	for _, entity := range entities {
		id := entity.Table()
		body, err := json.Marshal(entity)
		if err != nil {
			return fmt.Errorf("%w: encode %s/%s: %v", tablestore.ErrStorage, id.PartitionKey, id.RowKey, err)
		}
		op := tablestore.BatchOperation{PartitionKey: id.PartitionKey, RowKey: id.RowKey, Body: body}
		key := identity{id.PartitionKey, id.RowKey}
		if i, dup := index[key]; dup {
			ops[i] = op
			continue
		}
		index[key] = len(ops)
		ops = append(ops, op)
	}

	if err := r.client.SubmitBatch(ctx, ops); err != nil {
		return fmt.Errorf("insert batch into %s: %w", r.tableName, err)
	}
	return nil
}

// Delete removes entity if its ETag still matches the stored version. An entity without
// an ETag deletes unconditionally.
func (r *TableRepository[T, PT]) Delete(ctx context.Context, entity PT) error {
	id := entity.Table()
	etag := id.ETag
	if etag == "" {
		etag = "*"
	}
	if err := r.client.Delete(ctx, id.PartitionKey, id.RowKey, etag); err != nil {
		return fmt.Errorf("delete %s/%s from %s: %w", id.PartitionKey, id.RowKey, r.tableName, err)
	}
	return nil
}

// Get returns the entity at (partitionKey, rowKey) or an error wrapping tablestore.ErrNotFound.
func (r *TableRepository[T, PT]) Get(ctx context.Context, partitionKey, rowKey string) (PT, error) {
	raw, err := r.client.Get(ctx, partitionKey, rowKey)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s from %s: %w", partitionKey, rowKey, r.tableName, err)
	}
	return r.decode(raw)
}

// GetAll lists a partition ("" means the default partition). With count > 0 paging stops
// once count entities were collected; the page that crosses count is kept whole.
func (r *TableRepository[T, PT]) GetAll(ctx context.Context, partition string, count int) ([]PT, error) {
	q := tablestore.Query{Filter: r.partitionFilter(partition)}
	if count > 0 {
		q.Top = count
	}
	return r.query(ctx, q, count)
}

// GetWithSelect lists a partition hydrating only fields; other fields keep zero values.
func (r *TableRepository[T, PT]) GetWithSelect(ctx context.Context, fields []string, partition string) ([]PT, error) {
	return r.query(ctx, tablestore.Query{Filter: r.partitionFilter(partition), Select: fields}, 0)
}

// GetWithFilter lists the entities of a partition matching filter.
func (r *TableRepository[T, PT]) GetWithFilter(ctx context.Context, filter, partition string) ([]PT, error) {
	return r.query(ctx, tablestore.Query{Filter: combineFilters(filter, r.partitionFilter(partition))}, 0)
}

// GetWithSelectFilter combines GetWithSelect and GetWithFilter.
func (r *TableRepository[T, PT]) GetWithSelectFilter(ctx context.Context, fields []string, filter, partition string) ([]PT, error) {
	q := tablestore.Query{Filter: combineFilters(filter, r.partitionFilter(partition)), Select: fields}
	return r.query(ctx, q, 0)
}

func (r *TableRepository[T, PT]) partitionFilter(partition string) string {
	if isBlank(partition) {
		partition = r.defaultPartition
	}
	return tablestore.GenerateFilterCondition(tablestore.PartitionKeyProperty, tablestore.Equal, partition)
}

// query pages through q until the store runs out of pages, count entities were collected,
// or ctx is done. ctx is only consulted between pages; an interrupted listing returns
// what was collected so far.
func (r *TableRepository[T, PT]) query(ctx context.Context, q tablestore.Query, count int) ([]PT, error) {
	var out []PT
	var token *tablestore.ContinuationToken
	for {
		seg, err := r.client.QuerySegment(ctx, q, token)
		if err != nil {
			if errors.Is(err, tablestore.ErrStorage) {
				r.logger.Error("Table query failed",
					zap.String("table", r.tableName),
					zap.String("filter", q.Filter),
					zap.Error(err),
				)
			}
			return nil, fmt.Errorf("query %s: %w", r.tableName, err)
		}
		for _, raw := range seg.Entities {
			entity, err := r.decode(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, entity)
		}

		token = seg.Next
		if token == nil || (count > 0 && len(out) >= count) {
			return out, nil
		}
		if ctx.Err() != nil {
			r.logger.Debug("Table query interrupted between pages",
				zap.String("table", r.tableName),
				zap.Int("collected", len(out)),
			)
			return out, nil
		}
	}
}

func (r *TableRepository[T, PT]) decode(raw tablestore.RawEntity) (PT, error) {
	entity := PT(new(T))
	if err := json.Unmarshal(raw.Body, entity); err != nil {
		return nil, fmt.Errorf("%w: decode entity from %s: %v", tablestore.ErrStorage, r.tableName, err)
	}
	entity.Table().ETag = raw.ETag
	return entity, nil
}

// combineFilters ANDs two filter expressions. A blank side drops out; two blank sides
// give an empty filter, which matches every partition.
func combineFilters(a, b string) string {
	switch {
	case isBlank(a) && isBlank(b):
		return ""
	case isBlank(a):
		return b
	case isBlank(b):
		return a
	default:
		return tablestore.CombineFilters(a, tablestore.And, b)
	}
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
