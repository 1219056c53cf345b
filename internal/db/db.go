// Package db is the hand-maintained query layer over Postgres. Each query is
// a method on *Queries; the Querier interface mirrors those methods so
// handlers and workers can be tested against in-memory stubs.
//
// Dependency rule: db imports nothing from internal/. Types cross package
// boundaries as plain structs.
package db

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so the same query methods
// work inside and outside a transaction.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries executes all SQL against the given DBTX.
type Queries struct {
	db DBTX
}

// New creates a Queries bound to a connection pool or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries scoped to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}
