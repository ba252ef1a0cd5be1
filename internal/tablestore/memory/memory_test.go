package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/valyala/fastjson"

	"go-tablelogger/internal/tablestore"
)

func op(pk, rk, msg string) tablestore.BatchOperation {
	return tablestore.BatchOperation{
		PartitionKey: pk,
		RowKey:       rk,
		Body:         []byte(fmt.Sprintf(`{"PartitionKey":%q,"RowKey":%q,"Message":%q}`, pk, rk, msg)),
	}
}

func newTable(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c := NewClient(opts...)
	if err := c.CreateTableIfNotExists(context.Background()); err != nil {
		t.Fatalf("CreateTableIfNotExists: %v", err)
	}
	return c
}

func TestTableMustExist(t *testing.T) {
	c := NewClient()
	ctx := context.Background()
	if err := c.SubmitBatch(ctx, []tablestore.BatchOperation{op("p", "1", "m")}); !errors.Is(err, tablestore.ErrTableNotFound) {
		t.Errorf("SubmitBatch before create: %v", err)
	}
	if _, err := c.QuerySegment(ctx, tablestore.Query{}, nil); !errors.Is(err, tablestore.ErrTableNotFound) {
		t.Errorf("QuerySegment before create: %v", err)
	}
}

func TestSubmitBatchLastWriteWins(t *testing.T) {
	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTable(t, WithClock(func() time.Time { return stamp }))
	ctx := context.Background()

	err := c.SubmitBatch(ctx, []tablestore.BatchOperation{op("p", "1", "first"), op("p", "1", "second")})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
	got, err := c.Get(ctx, "p", "1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	v := fastjson.MustParseBytes(got.Body)
	if msg := string(v.GetStringBytes("Message")); msg != "second" {
		t.Errorf("Message = %q, want second", msg)
	}
	if ts := string(v.GetStringBytes("Timestamp")); ts != "2024-01-01T00:00:00Z" {
		t.Errorf("Timestamp = %q", ts)
	}
}

func TestSubmitBatchIsAtomic(t *testing.T) {
	c := newTable(t)
	ctx := context.Background()

	bad := tablestore.BatchOperation{PartitionKey: "p", RowKey: "2", Body: []byte(`not json`)}
	if err := c.SubmitBatch(ctx, []tablestore.BatchOperation{op("p", "1", "m"), bad}); !errors.Is(err, tablestore.ErrStorage) {
		t.Fatalf("SubmitBatch = %v, want ErrStorage", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after failed batch, want 0", c.Len())
	}

	if err := c.SubmitBatch(ctx, []tablestore.BatchOperation{op("a", "1", "m"), op("b", "1", "m")}); !errors.Is(err, tablestore.ErrStorage) {
		t.Errorf("cross-partition batch = %v, want ErrStorage", err)
	}
}

func TestDeleteConcurrency(t *testing.T) {
	c := newTable(t)
	ctx := context.Background()
	if err := c.SubmitBatch(ctx, []tablestore.BatchOperation{op("p", "1", "m")}); err != nil {
		t.Fatal(err)
	}
	stale, _ := c.Get(ctx, "p", "1")
	if err := c.SubmitBatch(ctx, []tablestore.BatchOperation{op("p", "1", "m2")}); err != nil {
		t.Fatal(err)
	}

	if err := c.Delete(ctx, "p", "1", stale.ETag); !errors.Is(err, tablestore.ErrConcurrencyConflict) {
		t.Errorf("Delete stale = %v, want ErrConcurrencyConflict", err)
	}
	fresh, _ := c.Get(ctx, "p", "1")
	if err := c.Delete(ctx, "p", "1", fresh.ETag); err != nil {
		t.Errorf("Delete fresh: %v", err)
	}
	if err := c.Delete(ctx, "p", "1", "*"); !errors.Is(err, tablestore.ErrNotFound) {
		t.Errorf("Delete missing = %v, want ErrNotFound", err)
	}
	if _, err := c.Get(ctx, "p", "1"); !errors.Is(err, tablestore.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestQuerySegmentPaginates(t *testing.T) {
	c := newTable(t, WithPageSize(4))
	ctx := context.Background()
	var ops []tablestore.BatchOperation
	for i := 0; i < 10; i++ {
		ops = append(ops, op("p", fmt.Sprintf("%02d", i), "m"))
	}
	if err := c.SubmitBatch(ctx, ops); err != nil {
		t.Fatal(err)
	}
	if err := c.SubmitBatch(ctx, []tablestore.BatchOperation{op("q", "00", "m")}); err != nil {
		t.Fatal(err)
	}

	q := tablestore.Query{Filter: tablestore.GenerateFilterCondition("PartitionKey", tablestore.Equal, "p")}
	var pages []int
	var token *tablestore.ContinuationToken
	total := 0
	for {
		seg, err := c.QuerySegment(ctx, q, token)
		if err != nil {
			t.Fatalf("QuerySegment: %v", err)
		}
		pages = append(pages, len(seg.Entities))
		total += len(seg.Entities)
		if seg.Next == nil {
			break
		}
		token = seg.Next
	}
	if total != 10 {
		t.Errorf("total = %d, want 10 (pages %v)", total, pages)
	}
	if pages[0] != 4 || pages[1] != 4 {
		t.Errorf("pages = %v, want 4-entity pages first", pages)
	}

	seg, err := c.QuerySegment(ctx, tablestore.Query{Filter: q.Filter, Top: 3}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(seg.Entities) != 3 || seg.Next == nil {
		t.Errorf("Top=3 returned %d entities, next=%v", len(seg.Entities), seg.Next)
	}
}

func TestQuerySegmentBadFilter(t *testing.T) {
	c := newTable(t)
	if _, err := c.QuerySegment(context.Background(), tablestore.Query{Filter: "PartitionKey eq"}, nil); !errors.Is(err, tablestore.ErrStorage) {
		t.Errorf("QuerySegment = %v, want ErrStorage", err)
	}
}
