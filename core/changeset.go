package core

import (
	"reflect"
	"sort"
)

// FieldChange is the old and new value of one column.
type FieldChange struct {
	Old any
	New any
}

// ChangeSet is the set of column-level differences of a document, keyed by
// column name.
type ChangeSet map[string]FieldChange

// Columns returns the changed columns in sorted order.
func (c ChangeSet) Columns() []string {
	out := make([]string, 0, len(c))
	for column := range c {
		out = append(out, column)
	}
	sort.Strings(out)
	return out
}

// Changes converts the change-set into the driver update payload.
func (c ChangeSet) Changes() Changes {
	out := make(Changes, len(c))
	for column, change := range c {
		out[column] = change.New
	}
	return out
}

// computeChangeSet compares a snapshot taken when the document became managed
// with its current state. The identifier is never part of the change-set.
func computeChangeSet(schema *SchemaCore, original map[string]any, doc any) ChangeSet {
	current := Snapshot(schema, doc)
	idColumn := ""
	if idField := schema.IdentifierField(); idField != nil {
		idColumn = idField.DatabaseColumnName
	}
	changeSet := ChangeSet{}
	for column, newValue := range current {
		if column == idColumn {
			continue
		}
		oldValue := original[column]
		if !reflect.DeepEqual(oldValue, newValue) {
			changeSet[column] = FieldChange{Old: oldValue, New: newValue}
		}
	}
	return changeSet
}

// changeSetFromChanges builds a change-set from a bulk update payload. Old
// values are unknown and left nil.
func changeSetFromChanges(changes Changes) ChangeSet {
	changeSet := make(ChangeSet, len(changes))
	for column, value := range changes {
		changeSet[column] = FieldChange{New: value}
	}
	return changeSet
}
