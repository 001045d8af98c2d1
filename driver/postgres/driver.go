// Package postgres implements core.Driver on top of a pgx connection pool.
//
// Each collection is a table whose columns are the mapped column names.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leandroluk/oxm/core"
)

// Driver is a core.Driver backed by a pgx pool.
type Driver struct {
	pool *pgxpool.Pool
}

var _ core.Driver = (*Driver)(nil)

// Open creates a pool for connString and verifies connectivity.
func Open(ctx context.Context, connString string) (*Driver, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Driver{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Driver { return &Driver{pool: pool} }

// exec runs sql in the transaction carried by ctx, or on the pool.
func (d *Driver) exec(ctx context.Context, sql string, args ...any) error {
	core.Logger().Trace().Str("sql", sql).Msg("exec")
	if tx, ok := core.TransactionFrom(ctx).(*transaction); ok {
		_, err := tx.tx.Exec(ctx, sql, args...)
		return err
	}
	_, err := d.pool.Exec(ctx, sql, args...)
	return err
}

func (d *Driver) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	core.Logger().Trace().Str("sql", sql).Msg("query")
	if tx, ok := core.TransactionFrom(ctx).(*transaction); ok {
		return tx.tx.Query(ctx, sql, args...)
	}
	return d.pool.Query(ctx, sql, args...)
}

func (d *Driver) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	core.Logger().Trace().Str("sql", sql).Msg("query row")
	if tx, ok := core.TransactionFrom(ctx).(*transaction); ok {
		return tx.tx.QueryRow(ctx, sql, args...)
	}
	return d.pool.QueryRow(ctx, sql, args...)
}

// Connect validates connectivity.
func (d *Driver) Connect(ctx context.Context) error { return d.pool.Ping(ctx) }

// Ping checks that the server is reachable.
func (d *Driver) Ping(ctx context.Context) error { return d.pool.Ping(ctx) }

// Close closes the pool.
func (d *Driver) Close(context.Context) error {
	d.pool.Close()
	return nil
}

// Transaction begins a transaction.
func (d *Driver) Transaction(ctx context.Context) (core.Transaction, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &transaction{tx: tx}, nil
}

// Insert inserts documents one statement at a time.
func (d *Driver) Insert(ctx context.Context, schema *core.SchemaCore, documents ...any) error {
	for _, doc := range documents {
		sql, args := buildInsert(schema, doc)
		if err := d.exec(ctx, sql, args...); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) find(ctx context.Context, schema *core.SchemaCore, query *core.Where, single bool) ([]map[string]any, error) {
	if query == nil {
		query = &core.Where{}
	}
	sql, args := buildSelect(schema, query, single)
	rows, err := d.query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	descriptionList := rows.FieldDescriptions()
	var rowList []map[string]any
	for rows.Next() {
		valueList, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(descriptionList))
		for i, col := range descriptionList {
			row[col.Name] = valueList[i]
		}
		rowList = append(rowList, row)
		if single {
			break
		}
	}
	return rowList, rows.Err()
}

// FindOne returns the first matching row, or nil.
func (d *Driver) FindOne(ctx context.Context, schema *core.SchemaCore, query *core.Where) (any, error) {
	rowList, err := d.find(ctx, schema, query, true)
	if err != nil {
		return nil, err
	}
	if len(rowList) == 0 {
		return nil, nil
	}
	return rowList[0], nil
}

// FindMany returns every matching row.
func (d *Driver) FindMany(ctx context.Context, schema *core.SchemaCore, query *core.Where) (any, error) {
	return d.find(ctx, schema, query, false)
}

// Update sets changes on the matching rows.
func (d *Driver) Update(ctx context.Context, schema *core.SchemaCore, condition *core.Condition, changes core.Changes) error {
	if len(changes) == 0 {
		return nil
	}
	sql, args := buildUpdate(schema, condition, changes)
	return d.exec(ctx, sql, args...)
}

// Delete removes the matching rows.
func (d *Driver) Delete(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) error {
	args := []any{}
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", tableName(schema), buildCondition(condition, &args))
	return d.exec(ctx, sql, args...)
}

// Count returns the number of matching rows.
func (d *Driver) Count(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	args := []any{}
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", tableName(schema), buildCondition(condition, &args))
	var count int64
	if err := d.queryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
