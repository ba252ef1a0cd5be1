package tablestore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fastjson"
)

// DefaultPageSize is the largest page the service returns for one query request.
const DefaultPageSize = 1000

// ValidateBatch applies the service's transaction rules to ops.
func ValidateBatch(ops []BatchOperation) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > MaxBatchSize {
		return fmt.Errorf("%w: batch holds %d operations, limit is %d", ErrStorage, len(ops), MaxBatchSize)
	}
	pk := ops[0].PartitionKey
	for _, op := range ops[1:] {
		if op.PartitionKey != pk {
			return fmt.Errorf("%w: batch spans partitions %q and %q", ErrStorage, pk, op.PartitionKey)
		}
	}
	return nil
}

// StampEntity rewrites the Timestamp property of an entity body with the store's
// modification time and returns the new body together with a fresh ETag.
func StampEntity(op BatchOperation, modified time.Time) ([]byte, string, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(op.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: malformed entity %s/%s: %v", ErrStorage, op.PartitionKey, op.RowKey, err)
	}
	if v.Type() != fastjson.TypeObject {
		return nil, "", fmt.Errorf("%w: entity %s/%s is not a JSON object", ErrStorage, op.PartitionKey, op.RowKey)
	}
	if string(v.GetStringBytes(PartitionKeyProperty)) != op.PartitionKey || string(v.GetStringBytes(RowKeyProperty)) != op.RowKey {
		return nil, "", fmt.Errorf("%w: entity body keys do not match %s/%s", ErrStorage, op.PartitionKey, op.RowKey)
	}

	var a fastjson.Arena
	v.Set(TimestampProperty, a.NewString(modified.UTC().Format(time.RFC3339Nano)))
	return v.MarshalTo(nil), NewETag(), nil
}

// NewETag returns a weak ETag unique to this write.
func NewETag() string {
	return `W/"` + uuid.NewString() + `"`
}

// ETagMatches reports whether a conditional request with want may act on stored.
func ETagMatches(want, stored string) bool {
	return want == "" || want == "*" || want == stored
}
