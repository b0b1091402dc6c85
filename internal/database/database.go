// Package database defines the capabilities a provider gateway offers the
// migration engine, and a database/sql-backed Connection they share.
package database

import (
	"context"
	"database/sql"
	"time"
)

// Executor runs statements. *sql.DB, *sql.Tx and Connection all satisfy it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Connection is an open session against the target database. While a
// transaction is open every statement, including ExecuteScript, runs inside it.
type Connection interface {
	Executor
	// ExecuteScript runs a full script body, split into batches where the
	// provider requires it.
	ExecuteScript(ctx context.Context, text string) error
	BeginTransaction(ctx context.Context) error
	Commit() error
	Rollback() error
	InTransaction() bool
	Close() error
}

// Dialect captures the SQL differences the journal cares about.
type Dialect interface {
	QuoteIdentifier(name string) string
	// Placeholder returns the bind marker for the 1-based argument position.
	Placeholder(position int) string
	// DefaultSchema is the schema used when none is configured. Empty means
	// the provider has no schema namespace.
	DefaultSchema() string
	// IsDuplicateObject reports whether err was caused by an object or row
	// that already exists.
	IsDuplicateObject(err error) bool
}

// Gateway is a provider-specific adapter.
type Gateway interface {
	Name() string
	Dialect() Dialect
	Connect(ctx context.Context, descriptor string, timeout time.Duration) (Connection, error)
	// EnsureDatabase creates the target database when it does not exist and
	// reports whether it did.
	EnsureDatabase(ctx context.Context, descriptor string, timeout time.Duration) (bool, error)
	// BuiltinVariables derives variables such as DatabaseName from the descriptor.
	BuiltinVariables(descriptor string) (map[string]string, error)
}

// BuiltinDatabaseName is the variable every gateway derives from its descriptor.
const BuiltinDatabaseName = "DatabaseName"
