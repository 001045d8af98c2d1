// Package core provides the fundamental building blocks of the oxm document mapper.
// This file carries driver transactions through context.Context, which is how
// Flush makes lifecycle listeners and driver writes share one transaction.
package core

import "context"

type transactionKey struct{}

// WithTransaction returns a context carrying tx. Drivers run every operation
// issued with that context inside tx.
//
// Example:
//
//	tx, _ := driver.Transaction(ctx)
//	txCtx := core.WithTransaction(ctx, tx)
//	err := userModel.Create(txCtx, &user)
func WithTransaction(ctx context.Context, tx Transaction) context.Context {
	return context.WithValue(ctx, transactionKey{}, tx)
}

// TransactionFrom returns the transaction carried by ctx, or nil.
func TransactionFrom(ctx context.Context) Transaction {
	tx, _ := ctx.Value(transactionKey{}).(Transaction)
	return tx
}

// TransactionFunc is run by RunTransaction with a context carrying the
// transaction.
type TransactionFunc func(txCtx context.Context) error

// RunTransaction runs fn in a transaction of driver: it commits when fn
// returns nil and rolls back otherwise, returning fn's error.
//
// If ctx already carries a transaction fn joins it, and committing is left to
// whoever started it. Listeners that write from inside a flush therefore take
// part in the flush's transaction.
//
// Example:
//
//	err := core.RunTransaction(ctx, driver, func(txCtx context.Context) error {
//	    if err := userModel.Create(txCtx, &user); err != nil {
//	        return err
//	    }
//	    return orderModel.Create(txCtx, &order)
//	})
func RunTransaction(ctx context.Context, driver Driver, fn TransactionFunc) error {
	if TransactionFrom(ctx) != nil {
		return fn(ctx)
	}
	tx, err := driver.Transaction(ctx)
	if err != nil {
		return err
	}
	pending := &commitHooks{}
	txCtx := context.WithValue(WithTransaction(ctx, tx), commitHooksKey{}, pending)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.Error().Err(rbErr).AnErr("cause", err).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	for _, hook := range pending.list {
		if err := hook(ctx); err != nil {
			logger.Warn().Err(err).Msg("after-commit hook failed")
		}
	}
	return nil
}

type commitHooksKey struct{}

type commitHooks struct{ list []func(context.Context) error }

// AfterCommit defers fn until the transaction started by RunTransaction for
// ctx commits. Hooks run in registration order and are dropped on rollback.
// Their errors are logged, since the transaction can no longer be undone.
//
// It reports false, and does not run fn, when ctx carries no such transaction.
//
// Example:
//
//	if !core.AfterCommit(ctx, publish) {
//	    return publish(ctx)
//	}
func AfterCommit(ctx context.Context, fn func(context.Context) error) bool {
	pending, ok := ctx.Value(commitHooksKey{}).(*commitHooks)
	if !ok {
		return false
	}
	pending.list = append(pending.list, fn)
	return true
}
