// Package sqlite keeps partitioned tables in a local SQLite file. It mirrors the hosted
// table service closely enough to run nodes offline and to test against real SQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"go-tablelogger/internal/tablestore"
	"go-tablelogger/internal/tablestore/filter"
)

// Schema creates the catalog of tables and the shared entity table.
const Schema = `
CREATE TABLE IF NOT EXISTS tbl_table (
name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS tbl_entity (
table_name TEXT NOT NULL,
partition_key TEXT NOT NULL,
row_key TEXT NOT NULL,
etag TEXT NOT NULL,
body BLOB NOT NULL, -- zstd-compressed JSON entity
PRIMARY KEY (table_name, partition_key, row_key)
);
`

// Client is one table inside a SQLite database.
type Client struct {
	db       *sql.DB
	table    string
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
	logger   *zap.Logger
	pageSize int
	now      func() time.Time
}

// NewClient binds a table name to an open database.
func NewClient(db *sql.DB, table string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Client{
		db:       db,
		table:    table,
		encoder:  enc,
		decoder:  dec,
		logger:   logger.With(zap.String("table", table)),
		pageSize: tablestore.DefaultPageSize,
		now:      time.Now,
	}, nil
}

// SetPageSize caps how many entities one segment returns.
func (c *Client) SetPageSize(n int) {
	if n > 0 {
		c.pageSize = n
	}
}

// Close releases the compression state. The database handle stays open.
func (c *Client) Close() error {
	c.decoder.Close()
	return c.encoder.Close()
}

var _ tablestore.Client = (*Client)(nil)

func (c *Client) CreateTableIfNotExists(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%w: create schema: %v", tablestore.ErrStorage, err)
	}
	res, err := c.db.ExecContext(ctx, `INSERT OR IGNORE INTO tbl_table (name) VALUES (?)`, c.table)
	if err != nil {
		return fmt.Errorf("%w: create table %s: %v", tablestore.ErrStorage, c.table, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		c.logger.Info("Created table")
	}
	return nil
}

func (c *Client) SubmitBatch(ctx context.Context, ops []tablestore.BatchOperation) error {
	if err := tablestore.ValidateBatch(ops); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	now := c.now()
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", tablestore.ErrStorage, err)
	}
	defer tx.Rollback()

	if err := c.ensureTable(ctx, tx); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO tbl_entity (table_name, partition_key, row_key, etag, body) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (table_name, partition_key, row_key) DO UPDATE SET etag = excluded.etag, body = excluded.body`)
	if err != nil {
		return fmt.Errorf("%w: prepare upsert: %v", tablestore.ErrStorage, err)
	}
	defer stmt.Close()

	for _, op := range ops {
		body, etag, err := tablestore.StampEntity(op, now)
		if err != nil {
			return err
		}
		compressed := c.encoder.EncodeAll(body, nil)
		if _, err := stmt.ExecContext(ctx, c.table, op.PartitionKey, op.RowKey, etag, compressed); err != nil {
			return fmt.Errorf("%w: upsert %s/%s: %v", tablestore.ErrStorage, op.PartitionKey, op.RowKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", tablestore.ErrStorage, err)
	}
	c.logger.Debug("Committed batch", zap.Int("operations", len(ops)), zap.String("partition", ops[0].PartitionKey))
	return nil
}

func (c *Client) Get(ctx context.Context, partitionKey, rowKey string) (tablestore.RawEntity, error) {
	if err := c.ensureTable(ctx, c.db); err != nil {
		return tablestore.RawEntity{}, err
	}
	var etag string
	var compressed []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT etag, body FROM tbl_entity WHERE table_name = ? AND partition_key = ? AND row_key = ?`,
		c.table, partitionKey, rowKey,
	).Scan(&etag, &compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return tablestore.RawEntity{}, fmt.Errorf("%w: %s/%s", tablestore.ErrNotFound, partitionKey, rowKey)
	}
	if err != nil {
		return tablestore.RawEntity{}, fmt.Errorf("%w: get %s/%s: %v", tablestore.ErrStorage, partitionKey, rowKey, err)
	}
	body, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return tablestore.RawEntity{}, fmt.Errorf("%w: decompress %s/%s: %v", tablestore.ErrStorage, partitionKey, rowKey, err)
	}
	return tablestore.RawEntity{Body: body, ETag: etag}, nil
}

func (c *Client) Delete(ctx context.Context, partitionKey, rowKey, etag string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", tablestore.ErrStorage, err)
	}
	defer tx.Rollback()

	if err := c.ensureTable(ctx, tx); err != nil {
		return err
	}

	var stored string
	err = tx.QueryRowContext(ctx,
		`SELECT etag FROM tbl_entity WHERE table_name = ? AND partition_key = ? AND row_key = ?`,
		c.table, partitionKey, rowKey,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s/%s", tablestore.ErrNotFound, partitionKey, rowKey)
	}
	if err != nil {
		return fmt.Errorf("%w: read etag %s/%s: %v", tablestore.ErrStorage, partitionKey, rowKey, err)
	}
	if !tablestore.ETagMatches(etag, stored) {
		return fmt.Errorf("%w: %s/%s", tablestore.ErrConcurrencyConflict, partitionKey, rowKey)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tbl_entity WHERE table_name = ? AND partition_key = ? AND row_key = ?`,
		c.table, partitionKey, rowKey,
	); err != nil {
		return fmt.Errorf("%w: delete %s/%s: %v", tablestore.ErrStorage, partitionKey, rowKey, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", tablestore.ErrStorage, err)
	}
	return nil
}

func (c *Client) QuerySegment(ctx context.Context, q tablestore.Query, token *tablestore.ContinuationToken) (tablestore.Segment, error) {
	prog, err := filter.Compile(q.Filter, q.Select)
	if err != nil {
		return tablestore.Segment{}, fmt.Errorf("%w: %v", tablestore.ErrStorage, err)
	}
	if err := c.ensureTable(ctx, c.db); err != nil {
		return tablestore.Segment{}, err
	}
	limit := c.pageSize
	if q.Top > 0 && q.Top < limit {
		limit = q.Top
	}

	var sb strings.Builder
	args := []any{c.table}
	sb.WriteString(`SELECT partition_key, row_key, etag, body FROM tbl_entity WHERE table_name = ?`)
	if pk, ok := prog.PartitionKey(); ok {
		sb.WriteString(` AND partition_key = ?`)
		args = append(args, pk)
	}
	if token != nil {
		sb.WriteString(` AND (partition_key > ? OR (partition_key = ? AND row_key >= ?))`)
		args = append(args, token.NextPartitionKey, token.NextPartitionKey, token.NextRowKey)
	}
	sb.WriteString(` ORDER BY partition_key, row_key`)

	rows, err := c.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return tablestore.Segment{}, fmt.Errorf("%w: query: %v", tablestore.ErrStorage, err)
	}
	defer rows.Close()

	var seg tablestore.Segment
	for rows.Next() {
		var pk, rk, etag string
		var compressed []byte
		if err := rows.Scan(&pk, &rk, &etag, &compressed); err != nil {
			return tablestore.Segment{}, fmt.Errorf("%w: scan: %v", tablestore.ErrStorage, err)
		}
		if len(seg.Entities) == limit {
			seg.Next = &tablestore.ContinuationToken{NextPartitionKey: pk, NextRowKey: rk}
			break
		}
		body, err := c.decoder.DecodeAll(compressed, nil)
		if err != nil {
			return tablestore.Segment{}, fmt.Errorf("%w: decompress %s/%s: %v", tablestore.ErrStorage, pk, rk, err)
		}
		out, ok, err := prog.Apply(body)
		if err != nil {
			return tablestore.Segment{}, fmt.Errorf("%w: %v", tablestore.ErrStorage, err)
		}
		if ok {
			seg.Entities = append(seg.Entities, tablestore.RawEntity{Body: out, ETag: etag})
		}
	}
	if err := rows.Err(); err != nil {
		return tablestore.Segment{}, fmt.Errorf("%w: row iteration: %v", tablestore.ErrStorage, err)
	}
	return seg, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (c *Client) ensureTable(ctx context.Context, q queryer) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM tbl_table WHERE name = ?`, c.table).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", tablestore.ErrTableNotFound, c.table)
	}
	if err != nil {
		// The catalog itself is missing until CreateTableIfNotExists has run once.
		if strings.Contains(err.Error(), "no such table") {
			return fmt.Errorf("%w: %s", tablestore.ErrTableNotFound, c.table)
		}
		return fmt.Errorf("%w: check table %s: %v", tablestore.ErrStorage, c.table, err)
	}
	return nil
}
