package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier represents the minimal database operations used by services.
// *pgxpool.Pool, pgx.Tx and pgxmock pools all satisfy this interface.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool adds transaction support for the validation chain, which must update
// ledger, reputation and spot atomically.
type Pool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}
