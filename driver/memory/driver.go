// Package memory implements core.Driver in process memory.
//
// It evaluates conditions in Go and supports transactions by snapshotting the
// whole store, which makes it suitable for tests and local tooling only.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/leandroluk/oxm/core"
)

// ErrClosed is returned by operations on a closed driver.
var ErrClosed = errors.New("memory: driver closed")

// Driver is an in-memory core.Driver. It is safe for concurrent use.
type Driver struct {
	mutex  sync.RWMutex
	tables map[string][]map[string]any
	closed bool
}

var _ core.Driver = (*Driver)(nil)

// New returns an empty driver.
func New() *Driver {
	return &Driver{tables: make(map[string][]map[string]any)}
}

func tableKey(schema *core.SchemaCore) string {
	if schema.Database != "" {
		return schema.Database + "." + schema.Collection
	}
	return schema.Collection
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// Rows returns a copy of the rows stored for schema, in insertion order.
func (d *Driver) Rows(schema *core.SchemaCore) []map[string]any {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	table := d.tables[tableKey(schema)]
	out := make([]map[string]any, 0, len(table))
	for _, row := range table {
		out = append(out, copyRow(row))
	}
	return out
}

// Seed stores raw rows for a collection, bypassing documents. Handy for join
// tables.
func (d *Driver) Seed(schema *core.SchemaCore, rows ...map[string]any) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	key := tableKey(schema)
	for _, row := range rows {
		d.tables[key] = append(d.tables[key], copyRow(row))
	}
}

func (d *Driver) check() error {
	if d.closed {
		return ErrClosed
	}
	return nil
}

// Connect reopens a closed driver.
func (d *Driver) Connect(context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.closed = false
	return nil
}

// Ping fails once the driver is closed.
func (d *Driver) Ping(context.Context) error {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.check()
}

// Close marks the driver closed. Stored rows are kept.
func (d *Driver) Close(context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.closed = true
	return nil
}

// Transaction snapshots the store; Rollback restores the snapshot.
func (d *Driver) Transaction(context.Context) (core.Transaction, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	snapshot := make(map[string][]map[string]any, len(d.tables))
	for key, table := range d.tables {
		rows := make([]map[string]any, 0, len(table))
		for _, row := range table {
			rows = append(rows, copyRow(row))
		}
		snapshot[key] = rows
	}
	return &transaction{driver: d, snapshot: snapshot}, nil
}

type transaction struct {
	driver   *Driver
	snapshot map[string][]map[string]any
	done     bool
}

func (t *transaction) Commit(context.Context) error {
	t.done = true
	t.snapshot = nil
	return nil
}

func (t *transaction) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.driver.mutex.Lock()
	defer t.driver.mutex.Unlock()
	t.driver.tables = t.snapshot
	return nil
}

// Insert stores documents keyed by column name.
func (d *Driver) Insert(_ context.Context, schema *core.SchemaCore, documents ...any) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	key := tableKey(schema)
	for _, doc := range documents {
		d.tables[key] = append(d.tables[key], core.Snapshot(schema, doc))
	}
	return nil
}

func (d *Driver) find(schema *core.SchemaCore, query *core.Where) ([]map[string]any, error) {
	if query == nil {
		query = &core.Where{}
	}
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	if err := d.check(); err != nil {
		return nil, err
	}

	var rowList []map[string]any
	for _, row := range d.tables[tableKey(schema)] {
		if matches(query.Condition, row) {
			rowList = append(rowList, copyRow(row))
		}
	}
	if len(query.Sort) > 0 {
		sort.SliceStable(rowList, func(i, j int) bool {
			for _, s := range query.Sort {
				c := compare(rowList[i][s.FieldName], rowList[j][s.FieldName])
				if c == 0 {
					continue
				}
				if s.Order < 0 {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if query.Offset > 0 {
		if query.Offset >= len(rowList) {
			return nil, nil
		}
		rowList = rowList[query.Offset:]
	}
	if query.Limit > 0 && query.Limit < len(rowList) {
		rowList = rowList[:query.Limit]
	}
	return rowList, nil
}

// FindOne returns the first matching row, or nil.
func (d *Driver) FindOne(_ context.Context, schema *core.SchemaCore, query *core.Where) (any, error) {
	rowList, err := d.find(schema, query)
	if err != nil {
		return nil, err
	}
	if len(rowList) == 0 {
		return nil, nil
	}
	return rowList[0], nil
}

// FindMany returns every matching row.
func (d *Driver) FindMany(_ context.Context, schema *core.SchemaCore, query *core.Where) (any, error) {
	return d.find(schema, query)
}

// Update sets changes on the matching rows.
func (d *Driver) Update(_ context.Context, schema *core.SchemaCore, condition *core.Condition, changes core.Changes) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	for _, row := range d.tables[tableKey(schema)] {
		if !matches(condition, row) {
			continue
		}
		for column, value := range changes {
			row[column] = value
		}
	}
	return nil
}

// Delete removes the matching rows.
func (d *Driver) Delete(_ context.Context, schema *core.SchemaCore, condition *core.Condition) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	key := tableKey(schema)
	kept := d.tables[key][:0:0]
	for _, row := range d.tables[key] {
		if !matches(condition, row) {
			kept = append(kept, row)
		}
	}
	d.tables[key] = kept
	return nil
}

// Count returns the number of matching rows.
func (d *Driver) Count(_ context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	var n int64
	for _, row := range d.tables[tableKey(schema)] {
		if matches(condition, row) {
			n++
		}
	}
	return n, nil
}
