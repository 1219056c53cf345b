// Package store wraps db.Querier with the funnel's write operations and the
// sentinel errors handlers branch on.
//
// Every cross-request invariant in this system reduces to a single
// conditional statement in Postgres — ON CONFLICT DO NOTHING for enrollment,
// a status guard in the WHERE clause for payment and sequence transitions —
// so there are no multi-statement transactions here. The store's job is to
// name those operations, translate zero-rows-matched into sentinel errors,
// and keep SQL concerns out of the handlers.
//
// Single-query reads (GetSessionByID, GetApprovedSession, etc.) should be
// called directly on db.Querier via Q() — there is no value in proxying them.
//
// Dependency rule: store imports db only. It never imports api, worker,
// payment, or email.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/historiasdelamente/detectar-backend/internal/db"
)

// Store holds the connection pool (for health checks) and a db.Querier for
// executing queries. The two operation files (sessions.go, sequences.go)
// attach methods to this type.
type Store struct {
	// pool is the raw connection pool, kept only for Ping.
	pool *sql.DB

	// q is the Querier behind all store methods. Handlers that hold a *Store
	// can also access it directly via store.Q() for single-query reads.
	q db.Querier
}

// New creates a Store from a live connection pool. The pool must already be
// open and verified (e.g. via PingContext) before calling New.
func New(pool *sql.DB, q db.Querier) *Store {
	return &Store{pool: pool, q: q}
}

// Q exposes the underlying Querier so callers (handlers, worker) can run
// single-query reads without going through a store method.
//
//	session, err := s.Q().GetSessionByID(ctx, id)
func (s *Store) Q() db.Querier {
	return s.q
}

// Ping verifies database connectivity. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}
