// Package dialect provides the database abstraction consumed by the
// vesta adapter: the dialect identifiers and the minimal driver surface
// the query engine executes against.
//
// The engine never talks to database/sql directly. Everything it runs
// goes through a Driver (or a Tx started from one), which keeps the
// connection pool, retries and driver quirks outside the core.
package dialect

import "context"

// Supported dialects.
const (
	MSSQL    = "sqlserver"
	MySQL    = "mysql"
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// ExecQuerier wraps the Exec and Query operations.
//
// The args parameter is expected to be a []any holding the bound
// parameters, and v is the destination value: *sql.Rows for Query,
// *sql.Result or nil for Exec.
type ExecQuerier interface {
	// Exec executes a statement that does not return rows.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface the engine executes statements against.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(ctx context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps transaction-scoped execution with commit and rollback.
// Whoever starts the transaction finishes it; a Tx handed to a callee
// is never committed or rolled back by that callee.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

// NopTx returns a Tx that executes against d and ignores
// Commit/Rollback. Useful for running transactional code paths against
// a bare driver in tests.
func NopTx(d Driver) Tx {
	return nopTx{d}
}

type nopTx struct {
	Driver
}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }
