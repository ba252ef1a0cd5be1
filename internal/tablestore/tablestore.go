package tablestore

import (
	"context"
	"errors"
	"time"
)

// MaxBatchSize is the number of operations a single entity-group transaction may hold.
const MaxBatchSize = 100

// Sentinel errors every Client implementation wraps its faults with.
var (
	ErrStorage             = errors.New("table storage failure")
	ErrNotFound            = errors.New("entity not found")
	ErrConcurrencyConflict = errors.New("entity etag mismatch")
	ErrTableNotFound       = errors.New("table not found")
)

// TableEntity holds the identity and concurrency fields shared by every stored entity.
// ETag is owned by the store and never serialized into the entity body.
type TableEntity struct {
	PartitionKey string    `json:"PartitionKey"`
	RowKey       string    `json:"RowKey"`
	Timestamp    time.Time `json:"Timestamp"`
	ETag         string    `json:"-"`
}

// Table returns the embedded identity, satisfying Entity for any struct embedding TableEntity.
func (e *TableEntity) Table() *TableEntity { return e }

// Entity is implemented by pointers to structs that embed TableEntity.
type Entity interface {
	Table() *TableEntity
}

// BatchOperation is a single insert-or-replace inside a transaction.
type BatchOperation struct {
	PartitionKey string
	RowKey       string
	Body         []byte // JSON object including PartitionKey and RowKey
}

// RawEntity is an entity as returned by the store: its JSON body and current ETag.
type RawEntity struct {
	Body []byte
	ETag string
}

// ContinuationToken points at the first entity of the next page.
type ContinuationToken struct {
	NextPartitionKey string
	NextRowKey       string
}

// Query describes one segmented query. Top <= 0 leaves the page size to the store.
type Query struct {
	Filter string
	Select []string
	Top    int
}

// Segment is one page of query results. Next is nil on the last page.
type Segment struct {
	Entities []RawEntity
	Next     *ContinuationToken
}

// Client is the set of table primitives the repository layer is written against.
type Client interface {
	// CreateTableIfNotExists is idempotent.
	CreateTableIfNotExists(ctx context.Context) error
	// SubmitBatch upserts all operations atomically. All operations must share a partition.
	SubmitBatch(ctx context.Context, ops []BatchOperation) error
	Get(ctx context.Context, partitionKey, rowKey string) (RawEntity, error)
	// Delete removes the entity if etag matches; "*" or "" matches any version.
	Delete(ctx context.Context, partitionKey, rowKey, etag string) error
	QuerySegment(ctx context.Context, q Query, token *ContinuationToken) (Segment, error)
}
