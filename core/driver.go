// Package core provides the fundamental building blocks of the oxm document mapper.
// This file defines the storage contract implemented by the packages under driver/.
package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Sort represents an ordering rule used in queries.
//
// FieldName is the stored field to sort by; Order is 1 for ascending and -1
// for descending.
type Sort struct {
	FieldName string
	Order     int // 1 = ASC, -1 = DESC
}

// Where encapsulates filtering and pagination options for queries.
//
// WithDeleted and OnlyDeleted control soft-delete filtering; drivers never see
// them, as the filter is folded into Condition beforehand.
type Where struct {
	Condition   *Condition
	Limit       int
	Offset      int
	Sort        []Sort
	WithDeleted bool
	OnlyDeleted bool
}

// String renders the query for logs.
func (w *Where) String() string {
	if w == nil {
		return "TRUE"
	}
	var b strings.Builder
	b.WriteString(w.Condition.String())
	for i, s := range w.Sort {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(s.FieldName)
		if s.Order < 0 {
			b.WriteString(" DESC")
		}
	}
	if w.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", w.Limit)
	}
	if w.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", w.Offset)
	}
	return b.String()
}

// Changes maps stored field names to their new values in an update.
type Changes map[string]any

// Columns returns the changed columns in sorted order.
func (c Changes) Columns() []string {
	out := make([]string, 0, len(c))
	for column := range c {
		out = append(out, column)
	}
	sort.Strings(out)
	return out
}

// Transaction defines the contract for database transaction management.
//
// Implementations must provide atomic commit and rollback semantics.
type Transaction interface {
	// Commit finalizes the transaction and makes all changes permanent.
	Commit(ctx context.Context) error
	// Rollback reverts the transaction, discarding all changes.
	Rollback(ctx context.Context) error
}

// Driver is the storage backend of models and document managers.
//
// Documents are handed to Insert as pointers to mapped structs. Reads return
// rows keyed by stored field name: FindOne returns a map[string]any (or nil
// when nothing matches) and FindMany a []map[string]any. Drivers must look up
// a Transaction carried by ctx (see TransactionFrom) and run inside it.
type Driver interface {
	// Connect establishes a new connection or validates connectivity.
	Connect(ctx context.Context) error
	// Ping checks if the underlying database is reachable.
	Ping(ctx context.Context) error
	// Close terminates the connection and releases resources.
	Close(ctx context.Context) error

	// Transaction starts a new database transaction.
	Transaction(ctx context.Context) (Transaction, error)

	// Insert stores one or more documents.
	Insert(ctx context.Context, schema *SchemaCore, documents ...any) error
	// FindOne retrieves the first row matching the given options.
	FindOne(ctx context.Context, schema *SchemaCore, options *Where) (any, error)
	// FindMany retrieves every row matching the given options.
	FindMany(ctx context.Context, schema *SchemaCore, options *Where) (any, error)
	// Update modifies the rows matching the condition.
	Update(ctx context.Context, schema *SchemaCore, condition *Condition, changes Changes) error
	// Delete removes the rows matching the condition.
	Delete(ctx context.Context, schema *SchemaCore, condition *Condition) error
	// Count returns the number of rows matching the condition.
	Count(ctx context.Context, schema *SchemaCore, condition *Condition) (int64, error)
}
