package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// transaction adapts a pgx.Tx to core.Transaction.
type transaction struct {
	tx pgx.Tx
}

// Commit makes the changes permanent.
func (t *transaction) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

// Rollback discards the changes. Rolling back a committed transaction is a
// no-op in pgx.
func (t *transaction) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }
