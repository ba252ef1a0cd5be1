// Package azure adapts an Azure Table Storage table to tablestore.Client.
package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"go-tablelogger/internal/tablestore"
)

const (
	odataETag         = "odata.etag"
	odataTypeSuffix   = "@odata.type"
	edmDateTime       = "Edm.DateTime"
	tableExistsCode   = "TableAlreadyExists"
	tableNotFoundCode = "TableNotFound"
)

// Client is one table of a storage account.
type Client struct {
	table     *aztables.Client
	name      string
	dateProps []string
	logger    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithDateTimeProperties marks string properties that hold RFC 3339 instants so the
// service stores them as Edm.DateTime and datetime'...' filters compare them.
func WithDateTimeProperties(names ...string) Option {
	return func(c *Client) { c.dateProps = append(c.dateProps, names...) }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClientFromConnectionString connects to table name of the account in connStr.
func NewClientFromConnectionString(connStr, name string, opts ...Option) (*Client, error) {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: parse connection string: %v", tablestore.ErrStorage, err)
	}
	return NewClient(svc.NewClient(name), name, opts...), nil
}

// NewClient wraps an existing SDK table client.
func NewClient(table *aztables.Client, name string, opts ...Option) *Client {
	c := &Client{table: table, name: name, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("table", name))
	return c
}

var _ tablestore.Client = (*Client)(nil)

func (c *Client) CreateTableIfNotExists(ctx context.Context) error {
	_, err := c.table.CreateTable(ctx, nil)
	if err == nil {
		c.logger.Info("Created table")
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.ErrorCode == tableExistsCode {
		return nil
	}
	return mapError("create table "+c.name, err)
}

func (c *Client) SubmitBatch(ctx context.Context, ops []tablestore.BatchOperation) error {
	if err := tablestore.ValidateBatch(ops); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	actions := make([]aztables.TransactionAction, 0, len(ops))
	for _, op := range ops {
		body, err := c.outgoing(op)
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeInsertReplace,
			Entity:     body,
		})
	}
	if _, err := c.table.SubmitTransaction(ctx, actions, nil); err != nil {
		return mapError(fmt.Sprintf("submit batch of %d to partition %s", len(ops), ops[0].PartitionKey), err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, partitionKey, rowKey string) (tablestore.RawEntity, error) {
	resp, err := c.table.GetEntity(ctx, partitionKey, rowKey, nil)
	if err != nil {
		return tablestore.RawEntity{}, mapError(fmt.Sprintf("get %s/%s", partitionKey, rowKey), err)
	}
	body, etag, err := incoming(resp.Value)
	if err != nil {
		return tablestore.RawEntity{}, err
	}
	if resp.ETag != "" {
		etag = string(resp.ETag)
	}
	return tablestore.RawEntity{Body: body, ETag: etag}, nil
}

func (c *Client) Delete(ctx context.Context, partitionKey, rowKey, etag string) error {
	match := azcore.ETagAny
	if etag != "" {
		match = azcore.ETag(etag)
	}
	_, err := c.table.DeleteEntity(ctx, partitionKey, rowKey, &aztables.DeleteEntityOptions{IfMatch: &match})
	if err != nil {
		return mapError(fmt.Sprintf("delete %s/%s", partitionKey, rowKey), err)
	}
	return nil
}

func (c *Client) QuerySegment(ctx context.Context, q tablestore.Query, token *tablestore.ContinuationToken) (tablestore.Segment, error) {
	opts := &aztables.ListEntitiesOptions{}
	if q.Filter != "" {
		opts.Filter = &q.Filter
	}
	if len(q.Select) > 0 {
		sel := strings.Join(q.Select, ",")
		opts.Select = &sel
	}
	if top := pageTop(q.Top); top > 0 {
		opts.Top = &top
	}
	if token != nil {
		opts.NextPartitionKey = &token.NextPartitionKey
		opts.NextRowKey = &token.NextRowKey
	}

	pager := c.table.NewListEntitiesPager(opts)
	page, err := pager.NextPage(ctx)
	if err != nil {
		return tablestore.Segment{}, mapError("query "+c.name, err)
	}

	seg := tablestore.Segment{Entities: make([]tablestore.RawEntity, 0, len(page.Entities))}
	for _, raw := range page.Entities {
		body, etag, err := incoming(raw)
		if err != nil {
			return tablestore.Segment{}, err
		}
		seg.Entities = append(seg.Entities, tablestore.RawEntity{Body: body, ETag: etag})
	}
	if page.NextPartitionKey != nil && *page.NextPartitionKey != "" {
		seg.Next = &tablestore.ContinuationToken{NextPartitionKey: *page.NextPartitionKey}
		if page.NextRowKey != nil {
			seg.Next.NextRowKey = *page.NextRowKey
		}
	}
	return seg, nil
}

// outgoing drops the store-managed Timestamp and adds type annotations for date properties.
func (c *Client) outgoing(op tablestore.BatchOperation) ([]byte, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(op.Body)
	if err != nil || v.Type() != fastjson.TypeObject {
		return nil, fmt.Errorf("%w: malformed entity %s/%s", tablestore.ErrStorage, op.PartitionKey, op.RowKey)
	}
	v.Del(tablestore.TimestampProperty)
	var a fastjson.Arena
	for _, name := range c.dateProps {
		if v.Get(name) != nil && v.Get(name).Type() == fastjson.TypeString {
			v.Set(name+odataTypeSuffix, a.NewString(edmDateTime))
		}
	}
	return v.MarshalTo(nil), nil
}

// incoming strips OData annotations from a service entity and returns its ETag.
func incoming(raw []byte) ([]byte, string, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(raw)
	if err != nil {
		return nil, "", fmt.Errorf("%w: malformed service entity: %v", tablestore.ErrStorage, err)
	}
	obj, err := v.Object()
	if err != nil {
		return nil, "", fmt.Errorf("%w: service entity is not an object", tablestore.ErrStorage)
	}
	etag := string(v.GetStringBytes(odataETag))
	var annotations []string
	obj.Visit(func(k []byte, _ *fastjson.Value) {
		key := string(k)
		if strings.HasPrefix(key, "odata.") || strings.Contains(key, "@odata.") {
			annotations = append(annotations, key)
		}
	})
	for _, key := range annotations {
		obj.Del(key)
	}
	return v.MarshalTo(nil), etag, nil
}

// mapError translates SDK failures into the tablestore sentinel errors.
func mapError(action string, err error) error {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return fmt.Errorf("%w: %s: %v", tablestore.ErrStorage, action, err)
	}
	switch {
	case respErr.ErrorCode == tableNotFoundCode:
		return fmt.Errorf("%w: %s", tablestore.ErrTableNotFound, action)
	case respErr.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", tablestore.ErrNotFound, action)
	case respErr.StatusCode == http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %s", tablestore.ErrConcurrencyConflict, action)
	default:
		return fmt.Errorf("%w: %s: status %d %s", tablestore.ErrStorage, action, respErr.StatusCode, respErr.ErrorCode)
	}
}

// pageTop clamps a requested page size to the service maximum; 0 means no limit.
func pageTop(top int) int32 {
	if top <= 0 {
		return 0
	}
	return int32(min(top, tablestore.DefaultPageSize))
}
