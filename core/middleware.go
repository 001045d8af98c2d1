// Package core provides the fundamental building blocks of the oxm document mapper.
// This file defines the operation middleware chain, used for logging and
// metrics around persistence operations.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Operation names what a middleware is wrapping.
type Operation string

// The payload handed to middlewares is the document for single-document
// operations, the Condition or Changes for bulk ones, the *Where of queries
// and the *UnitOfWork of a flush.
const (
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
	OperationFind   Operation = "find"
	OperationFlush  Operation = "flush"
)

// Handler runs one operation.
type Handler func(ctx context.Context, op Operation, payload any) error

// Middleware decorates the Handler of every model, document manager and unit
// of work operation. Lifecycle events are raised inside the wrapped handler.
type Middleware func(next Handler) Handler

var (
	middlewareMutex      sync.RWMutex
	globalMiddlewareList []Middleware
)

// Use registers a new global middleware, applied to all operations.
//
// Middlewares wrap each other in registration order: the first registered
// middleware is the outermost one.
func Use(mw Middleware) {
	middlewareMutex.Lock()
	defer middlewareMutex.Unlock()
	globalMiddlewareList = append(globalMiddlewareList, mw)
}

// resetMiddlewares removes every registered middleware. Tests only.
func resetMiddlewares() {
	middlewareMutex.Lock()
	defer middlewareMutex.Unlock()
	globalMiddlewareList = nil
}

// runMiddlewares applies the chain of middlewares to the final handler.
func runMiddlewares(final Handler) Handler {
	middlewareMutex.RLock()
	defer middlewareMutex.RUnlock()
	h := final
	// wrap from the innermost so the first registered runs first
	for i := len(globalMiddlewareList) - 1; i >= 0; i-- {
		h = globalMiddlewareList[i](h)
	}
	return h
}

// dispatchOperation executes an operation through the global middleware chain.
//
// The exec function contains the core logic of the operation and is wrapped
// by the registered middlewares.
func dispatchOperation(ctx context.Context, op Operation, payload any, exec func() error) error {
	handler := runMiddlewares(func(ctx context.Context, op Operation, payload any) error {
		return exec()
	})
	return handler(ctx, op, payload)
}

// LoggingMiddleware logs every operation with its duration and outcome:
// successes at debug level, failures at warn level. Payloads that describe
// themselves (conditions, queries) are logged as "payload".
//
// Example:
//
//	core.Use(core.LoggingMiddleware(zerolog.New(os.Stderr)))
func LoggingMiddleware(l zerolog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, op Operation, payload any) error {
			start := time.Now()
			err := next(ctx, op, payload)
			var event *zerolog.Event
			if err != nil {
				event = l.Warn().Err(err)
			} else {
				event = l.Debug()
			}
			event = event.Str("op", string(op)).Dur("took", time.Since(start))
			if s, ok := payload.(fmt.Stringer); ok {
				event = event.Stringer("payload", s)
			}
			if err != nil {
				event.Msg("operation failed")
			} else {
				event.Msg("operation done")
			}
			return err
		}
	}
}
