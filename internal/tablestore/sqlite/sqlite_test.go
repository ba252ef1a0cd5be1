package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/valyala/fastjson"

	"go-tablelogger/internal/tablestore"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTable(t *testing.T, db *sql.DB, name string) *Client {
	t.Helper()
	c, err := NewClient(db, name, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if err := c.CreateTableIfNotExists(context.Background()); err != nil {
		t.Fatalf("CreateTableIfNotExists: %v", err)
	}
	return c
}

func op(pk, rk, msg string) tablestore.BatchOperation {
	return tablestore.BatchOperation{
		PartitionKey: pk,
		RowKey:       rk,
		Body:         []byte(fmt.Sprintf(`{"PartitionKey":%q,"RowKey":%q,"Message":%q,"LogLevel":%d}`, pk, rk, msg, len(msg))),
	}
}

func TestTableMustExist(t *testing.T) {
	db := openDB(t)
	c, err := NewClient(db, "logs", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Get(context.Background(), "p", "1"); !errors.Is(err, tablestore.ErrTableNotFound) {
		t.Errorf("Get before create = %v, want ErrTableNotFound", err)
	}
}

func TestUpsertGetDelete(t *testing.T) {
	c := newTable(t, openDB(t), "logs")
	ctx := context.Background()

	if err := c.SubmitBatch(ctx, []tablestore.BatchOperation{op("p", "1", "first")}); err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	first, err := c.Get(ctx, "p", "1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := c.SubmitBatch(ctx, []tablestore.BatchOperation{op("p", "1", "second")}); err != nil {
		t.Fatalf("SubmitBatch replace: %v", err)
	}
	second, err := c.Get(ctx, "p", "1")
	if err != nil {
		t.Fatal(err)
	}
	if got := string(fastjson.MustParseBytes(second.Body).GetStringBytes("Message")); got != "second" {
		t.Errorf("Message = %q, want second", got)
	}
	if first.ETag == second.ETag {
		t.Error("replace should produce a new etag")
	}

	if err := c.Delete(ctx, "p", "1", first.ETag); !errors.Is(err, tablestore.ErrConcurrencyConflict) {
		t.Errorf("Delete stale = %v, want ErrConcurrencyConflict", err)
	}
	if err := c.Delete(ctx, "p", "1", second.ETag); err != nil {
		t.Errorf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "p", "1"); !errors.Is(err, tablestore.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestBatchRollsBack(t *testing.T) {
	c := newTable(t, openDB(t), "logs")
	ctx := context.Background()
	bad := tablestore.BatchOperation{PartitionKey: "p", RowKey: "2", Body: []byte(`{"PartitionKey":"p","RowKey":"x"}`)}
	if err := c.SubmitBatch(ctx, []tablestore.BatchOperation{op("p", "1", "m"), bad}); !errors.Is(err, tablestore.ErrStorage) {
		t.Fatalf("SubmitBatch = %v, want ErrStorage", err)
	}
	if _, err := c.Get(ctx, "p", "1"); !errors.Is(err, tablestore.ErrNotFound) {
		t.Errorf("first operation should have rolled back, Get = %v", err)
	}
}

func TestTablesAreIsolated(t *testing.T) {
	db := openDB(t)
	a := newTable(t, db, "a")
	b := newTable(t, db, "b")
	ctx := context.Background()
	if err := a.SubmitBatch(ctx, []tablestore.BatchOperation{op("p", "1", "m")}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Get(ctx, "p", "1"); !errors.Is(err, tablestore.ErrNotFound) {
		t.Errorf("entity leaked across tables: %v", err)
	}
}

func TestQuerySegmentPaginatesAndFilters(t *testing.T) {
	c := newTable(t, openDB(t), "logs")
	c.SetPageSize(3)
	ctx := context.Background()

	var ops []tablestore.BatchOperation
	for i := 0; i < 7; i++ {
		ops = append(ops, op("node-a", fmt.Sprintf("%02d", i), "m"))
	}
	if err := c.SubmitBatch(ctx, ops); err != nil {
		t.Fatal(err)
	}
	if err := c.SubmitBatch(ctx, []tablestore.BatchOperation{op("node-b", "00", "long message")}); err != nil {
		t.Fatal(err)
	}

	q := tablestore.Query{
		Filter: tablestore.GenerateFilterCondition(tablestore.PartitionKeyProperty, tablestore.Equal, "node-a"),
		Select: []string{"RowKey"},
	}
	var rowKeys []string
	var token *tablestore.ContinuationToken
	for {
		seg, err := c.QuerySegment(ctx, q, token)
		if err != nil {
			t.Fatalf("QuerySegment: %v", err)
		}
		for _, e := range seg.Entities {
			v := fastjson.MustParseBytes(e.Body)
			if v.Exists("Message") {
				t.Errorf("projection leaked Message: %s", e.Body)
			}
			rowKeys = append(rowKeys, string(v.GetStringBytes("RowKey")))
		}
		if seg.Next == nil {
			break
		}
		token = seg.Next
	}
	if len(rowKeys) != 7 || rowKeys[0] != "00" || rowKeys[6] != "06" {
		t.Errorf("row keys = %v", rowKeys)
	}

	seg, err := c.QuerySegment(ctx, tablestore.Query{Filter: "LogLevel gt 5"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(seg.Entities) != 1 {
		t.Errorf("LogLevel gt 5 matched %d entities, want 1", len(seg.Entities))
	}
}
