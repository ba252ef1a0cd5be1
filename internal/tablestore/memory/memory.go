// Package memory is an in-process table store with the same partition, batch and
// pagination rules as the hosted service.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go-tablelogger/internal/tablestore"
	"go-tablelogger/internal/tablestore/filter"
)

type key struct {
	pk, rk string
}

type row struct {
	body []byte
	etag string
}

// Client is a single in-memory table.
type Client struct {
	mu       sync.RWMutex
	created  bool
	rows     map[key]row
	pageSize int
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithPageSize caps how many entities one segment returns.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithClock overrides the clock used for the store-managed Timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient returns an empty table. CreateTableIfNotExists must run before use.
func NewClient(opts ...Option) *Client {
	c := &Client{
		rows:     make(map[key]row),
		pageSize: tablestore.DefaultPageSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ tablestore.Client = (*Client)(nil)

func (c *Client) CreateTableIfNotExists(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = true
	return nil
}

func (c *Client) SubmitBatch(ctx context.Context, ops []tablestore.BatchOperation) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", tablestore.ErrStorage, err)
	}
	if err := tablestore.ValidateBatch(ops); err != nil {
		return err
	}

	// Stamp everything first so a malformed entity aborts the whole batch.
	now := c.now()
	staged := make([]row, len(ops))
	for i, op := range ops {
		body, etag, err := tablestore.StampEntity(op, now)
		if err != nil {
			return err
		}
		staged[i] = row{body: body, etag: etag}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.created {
		return tablestore.ErrTableNotFound
	}
	for i, op := range ops {
		c.rows[key{op.PartitionKey, op.RowKey}] = staged[i]
	}
	return nil
}

func (c *Client) Get(ctx context.Context, partitionKey, rowKey string) (tablestore.RawEntity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.created {
		return tablestore.RawEntity{}, tablestore.ErrTableNotFound
	}
	r, ok := c.rows[key{partitionKey, rowKey}]
	if !ok {
		return tablestore.RawEntity{}, fmt.Errorf("%w: %s/%s", tablestore.ErrNotFound, partitionKey, rowKey)
	}
	return tablestore.RawEntity{Body: append([]byte(nil), r.body...), ETag: r.etag}, nil
}

func (c *Client) Delete(ctx context.Context, partitionKey, rowKey, etag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.created {
		return tablestore.ErrTableNotFound
	}
	k := key{partitionKey, rowKey}
	r, ok := c.rows[k]
	if !ok {
		return fmt.Errorf("%w: %s/%s", tablestore.ErrNotFound, partitionKey, rowKey)
	}
	if !tablestore.ETagMatches(etag, r.etag) {
		return fmt.Errorf("%w: %s/%s", tablestore.ErrConcurrencyConflict, partitionKey, rowKey)
	}
	delete(c.rows, k)
	return nil
}

func (c *Client) QuerySegment(ctx context.Context, q tablestore.Query, token *tablestore.ContinuationToken) (tablestore.Segment, error) {
	if err := ctx.Err(); err != nil {
		return tablestore.Segment{}, fmt.Errorf("%w: %v", tablestore.ErrStorage, err)
	}
	prog, err := filter.Compile(q.Filter, q.Select)
	if err != nil {
		return tablestore.Segment{}, fmt.Errorf("%w: %v", tablestore.ErrStorage, err)
	}
	limit := c.pageSize
	if q.Top > 0 && q.Top < limit {
		limit = q.Top
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.created {
		return tablestore.Segment{}, tablestore.ErrTableNotFound
	}

	keys := make([]key, 0, len(c.rows))
	for k := range c.rows {
		if token != nil && less(k, key{token.NextPartitionKey, token.NextRowKey}) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })

	var seg tablestore.Segment
	for _, k := range keys {
		if len(seg.Entities) == limit {
			seg.Next = &tablestore.ContinuationToken{NextPartitionKey: k.pk, NextRowKey: k.rk}
			break
		}
		r := c.rows[k]
		body, ok, err := prog.Apply(r.body)
		if err != nil {
			return tablestore.Segment{}, fmt.Errorf("%w: %v", tablestore.ErrStorage, err)
		}
		if ok {
			seg.Entities = append(seg.Entities, tablestore.RawEntity{Body: body, ETag: r.etag})
		}
	}
	return seg, nil
}

// Len reports how many entities the table holds.
func (c *Client) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rows)
}

func less(a, b key) bool {
	if a.pk != b.pk {
		return a.pk < b.pk
	}
	return a.rk < b.rk
}
