package mongo

import (
	"context"

	mongodb "go.mongodb.org/mongo-driver/mongo"
)

// transaction adapts a MongoDB session to core.Transaction. Commit and
// Rollback both end the session.
type transaction struct {
	session mongodb.Session
}

// Commit finalizes the transaction and ends the session.
func (t *transaction) Commit(ctx context.Context) error {
	defer t.session.EndSession(ctx)
	return t.session.CommitTransaction(ctx)
}

// Rollback aborts the transaction and ends the session.
func (t *transaction) Rollback(ctx context.Context) error {
	defer t.session.EndSession(ctx)
	return t.session.AbortTransaction(ctx)
}
