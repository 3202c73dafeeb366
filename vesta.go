// Package vesta implements a schema-driven adapter over relational
// databases: a query compiler that translates structured query
// descriptors into dialect-specific SQL, a relationship engine that
// materializes related rows onto results, and a write pipeline that
// keeps junction and side tables consistent with entity writes.
package vesta

import (
	"context"
	"fmt"

	"github.com/go-openapi/inflect"

	"github.com/VestaRayanAfzar/vesta-driver-mssql/dialect"
	sqlgw "github.com/VestaRayanAfzar/vesta-driver-mssql/dialect/sql"
	"github.com/VestaRayanAfzar/vesta-driver-mssql/schema"
)

// Record is one entity row as scanned from the database, keyed by field
// name. Relation fields hold nested Records (or slices of them) after
// materialization.
type Record = map[string]any

// Page is the result of a paginated read.
type Page struct {
	Records []Record
	Total   int
}

// Client executes queries and mutations against a driver using a schema
// registry. A Client is safe for concurrent use unless it is bound to a
// transaction.
type Client struct {
	drv   dialect.Driver
	reg   *schema.Registry
	cp    *compiler
	cache Cache
	tx    dialect.Tx
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCache attaches a read-through cache. Cached entries are keyed by
// entity and invalidated whenever the entity is written.
func WithCache(c Cache) ClientOption {
	return func(cl *Client) { cl.cache = c }
}

// NewClient returns a client over the given driver and registry.
func NewClient(drv dialect.Driver, reg *schema.Registry, opts ...ClientOption) *Client {
	c := &Client{
		drv: drv,
		reg: reg,
		cp:  &compiler{reg: reg, dialect: drv.Dialect()},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tx begins a transaction. Mutations issued through a client returned by
// WithTx run inside it; the caller owns the commit or rollback.
func (c *Client) Tx(ctx context.Context) (dialect.Tx, error) {
	if c.tx != nil {
		return nil, ErrTxStarted
	}
	return c.drv.Tx(ctx)
}

// WithTx returns a client bound to tx. The bound client never commits
// or rolls back tx, even on error.
func (c *Client) WithTx(tx dialect.Tx) *Client {
	cc := *c
	cc.tx = tx
	return &cc
}

// Registry returns the schema registry the client compiles against.
func (c *Client) Registry() *schema.Registry { return c.reg }

// Dialect returns the dialect name of the underlying driver.
func (c *Client) Dialect() string { return c.drv.Dialect() }

// conn returns the execution surface: the bound transaction when there
// is one, the driver otherwise.
func (c *Client) conn() dialect.ExecQuerier {
	if c.tx != nil {
		return c.tx
	}
	return c.drv
}

// aliasOf derives the root table alias for an entity, e.g. Post -> post.
func aliasOf(entity string) string {
	return inflect.Underscore(entity)
}

// Find executes q and returns the matching records with all requested
// relations materialized.
func (c *Client) Find(ctx context.Context, q *Query) ([]Record, error) {
	alias := aliasOf(q.Entity)
	b := newBuilder(c.cp.dialect)
	p, err := c.cp.compileQuery(q, alias, b)
	if err != nil {
		return nil, err
	}
	stmt := c.cp.selectStmt(q, alias, p, b)

	key := cacheKey(q.Entity, stmt, b.args)
	if c.cache != nil && c.tx == nil {
		if recs, ok := cacheGet(ctx, c.cache, key); ok {
			return recs, nil
		}
	}

	recs, err := c.queryRecords(ctx, stmt, b.args)
	if err != nil {
		return nil, NewQueryError(q.Entity, err)
	}
	c.normalizeRecords(q, recs)
	if err := c.attachRelations(ctx, q, recs); err != nil {
		return nil, err
	}
	if c.cache != nil && c.tx == nil {
		cacheSet(ctx, c.cache, key, recs)
	}
	return recs, nil
}

// FindOne executes q and returns the first record. It returns a
// NotFoundError when nothing matches.
func (c *Client) FindOne(ctx context.Context, q *Query) (Record, error) {
	recs, err := c.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, NewNotFoundError(q.Entity, nil)
	}
	return recs[0], nil
}

// FindByID fetches one record by primary key, optionally materializing
// the named relations.
func (c *Client) FindByID(ctx context.Context, entity string, id any, relations ...string) (Record, error) {
	pk := c.reg.PrimaryKey(entity)
	q := NewQuery(entity).Filter(EQ(pk, id)).With(relations...)
	recs, err := c.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, NewNotFoundError(entity, id)
	}
	return recs[0], nil
}

// FindPage executes q alongside its count companion and returns both
// the page of records and the unpaginated total.
func (c *Client) FindPage(ctx context.Context, q *Query) (*Page, error) {
	recs, err := c.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	total, err := c.Count(ctx, q)
	if err != nil {
		return nil, err
	}
	return &Page{Records: recs, Total: total}, nil
}

// Count returns the number of rows matching q's conditions and joins,
// ignoring field selection and pagination.
func (c *Client) Count(ctx context.Context, q *Query) (int, error) {
	alias := aliasOf(q.Entity)
	b := newBuilder(c.cp.dialect)
	stmt, err := c.cp.compileCount(q, alias, b)
	if err != nil {
		return 0, err
	}
	recs, err := c.queryRecords(ctx, stmt, b.args)
	if err != nil {
		return 0, NewQueryError(q.Entity, err)
	}
	if len(recs) == 0 {
		return 0, nil
	}
	return toInt(recs[0]["total"]), nil
}

// queryRecords runs one SELECT and scans every row into a Record.
func (c *Client) queryRecords(ctx context.Context, stmt string, args []any) ([]Record, error) {
	return queryConn(ctx, c.conn(), stmt, args)
}

func queryConn(ctx context.Context, conn dialect.ExecQuerier, stmt string, args []any) ([]Record, error) {
	var rows sqlgw.Rows
	if err := conn.Query(ctx, stmt, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(&rows)
}

// exec runs one statement and returns the number of affected rows.
func (c *Client) exec(ctx context.Context, conn dialect.ExecQuerier, stmt string, args []any) (int64, error) {
	var res sqlgw.Result
	if err := conn.Exec(ctx, stmt, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// scanRows drains rows into records. Byte slices are converted to
// strings so values compare and serialize uniformly across drivers.
func scanRows(rows *sqlgw.Rows) ([]Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var recs []Record
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(Record, len(columns))
		for i, col := range columns {
			if bs, ok := values[i].([]byte); ok {
				rec[col] = string(bs)
			} else {
				rec[col] = values[i]
			}
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// toInt coerces a scanned count value across driver representations.
func toInt(v any) int {
	switch x := v.(type) {
	case int64:
		return int(x)
	case int:
		return x
	case float64:
		return int(x)
	case string:
		var n int
		fmt.Sscanf(x, "%d", &n)
		return n
	default:
		return 0
	}
}
