// Package core provides the fundamental building blocks of the oxm document mapper.
// This file contains helper functions for reflection, field mapping,
// condition folding, and common value transformations.
package core

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unsafe"

	"github.com/google/uuid"
)

// offsetOf returns the memory offset of a struct field selected by the given selector function.
func offsetOf[T any, F any](selector func(*T) *F) uintptr {
	var zero T
	base := uintptr(unsafe.Pointer(&zero))
	ptr := selector(&zero)
	return uintptr(unsafe.Pointer(ptr)) - base
}

// fieldNameFromSelectorFor resolves the Go struct field name from a selector function.
//
// It takes a function of the form func(*T) *F and uses reflection to map it
// back to the struct field name.
//
// Panics if the argument is not a function, or if the function does not return a field pointer.
func fieldNameFromSelectorFor[T any](selector any) string {
	if selector == nil {
		return ""
	}
	selectorValue := reflect.ValueOf(selector)
	if selectorValue.Kind() != reflect.Func {
		panic("selector must be a function")
	}

	var zero T
	typ := reflect.TypeOf(zero)
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	arg := reflect.New(typ) // *T

	out := selectorValue.Call([]reflect.Value{arg})
	if len(out) == 0 {
		panic("selector must return a pointer to a field")
	}
	ret := out[0]
	if ret.Kind() == reflect.Interface {
		ret = ret.Elem()
	}
	if ret.Kind() != reflect.Pointer {
		panic("selector must return a pointer to a field")
	}

	offset := ret.Pointer() - arg.Pointer()
	for _, sf := range reflect.VisibleFields(typ) {
		if sf.Offset == offset && !sf.Anonymous && len(sf.Index) == 1 {
			return sf.Name
		}
	}
	panic(fmt.Sprintf("selector does not point at a field of %s", typ))
}

// mapToValue assigns row values to the fields of a struct value.
//
// Row keys are column names; they are resolved through the schema and, failing
// that, matched case-insensitively against Go field names. Values are assigned
// with support for:
//  1. Exact type matching
//  2. Value → pointer conversions (e.g. time.Time → *time.Time)
//  3. Pointer → value conversions (e.g. *time.Time → time.Time)
//  4. Convertible types (e.g. int32 → int64)
//
// Values matching none of these are skipped.
func mapToValue(schema *SchemaCore, row map[string]any, value reflect.Value) error {
	for rowKey, rowValue := range row {
		var field reflect.Value
		if schema != nil {
			if f := schema.FieldByColumn(rowKey); f != nil {
				field = value.FieldByName(f.StructFieldName)
			}
		}
		if !field.IsValid() {
			field = value.FieldByNameFunc(func(name string) bool { return strings.EqualFold(name, rowKey) })
		}
		if !field.IsValid() || !field.CanSet() {
			continue
		}

		if rowValue == nil {
			field.Set(reflect.Zero(field.Type()))
			continue
		}

		rv := reflect.ValueOf(rowValue)

		// 1) exact type match
		if rv.Type().AssignableTo(field.Type()) {
			field.Set(rv)
			continue
		}

		// 2) value → pointer
		if field.Kind() == reflect.Pointer && rv.Type().AssignableTo(field.Type().Elem()) {
			ptr := reflect.New(field.Type().Elem())
			ptr.Elem().Set(rv)
			field.Set(ptr)
			continue
		}

		// 3) pointer → value
		if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Type().Elem().AssignableTo(field.Type()) {
			field.Set(rv.Elem())
			continue
		}

		// 4) convertible types
		if rv.Type().ConvertibleTo(field.Type()) {
			field.Set(rv.Convert(field.Type()))
			continue
		}
		if field.Kind() == reflect.Pointer && rv.Type().ConvertibleTo(field.Type().Elem()) {
			ptr := reflect.New(field.Type().Elem())
			ptr.Elem().Set(rv.Convert(field.Type().Elem()))
			field.Set(ptr)
			continue
		}
		logger.Debug().Str("column", rowKey).Str("type", fmt.Sprintf("%T", rowValue)).Msg("value not assignable, skipped")
	}
	return nil
}

// foldConditionsAnd combines multiple conditions into a single condition
// using logical AND. Nil conditions are skipped.
func foldConditionsAnd(conds ...*Condition) *Condition {
	nonNil := conds[:0:0]
	for _, c := range conds {
		if c != nil {
			nonNil = append(nonNil, c)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return nonNil[0].And(nonNil[1:]...)
	}
}

// structValue dereferences doc down to the struct value.
func structValue(doc any) reflect.Value {
	value := reflect.ValueOf(doc)
	for value.Kind() == reflect.Pointer {
		value = value.Elem()
	}
	return value
}

// fieldValue returns the plain value of a field, dereferencing pointers and
// turning nil pointers into nil.
func fieldValue(fv reflect.Value) any {
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return nil
		}
		return fv.Elem().Interface()
	}
	return fv.Interface()
}

// StructValues extracts field values from a struct according to its schema.
//
// It returns two slices:
//   - values: field values in order
//   - placeholders: parameter placeholders ($1, $2, ...) for SQL queries
func StructValues(schema *SchemaCore, doc any) ([]any, []string) {
	value := structValue(doc)

	valueList := []any{}
	placeholderList := []string{}

	for index, field := range schema.Fields {
		valueList = append(valueList, fieldValue(value.FieldByName(field.StructFieldName)))
		placeholderList = append(placeholderList, fmt.Sprintf("$%d", index+1))
	}

	return valueList, placeholderList
}

// Snapshot returns the column values of doc keyed by column name.
func Snapshot(schema *SchemaCore, doc any) map[string]any {
	value := structValue(doc)
	out := make(map[string]any, len(schema.Fields))
	for _, field := range schema.Fields {
		out[field.DatabaseColumnName] = fieldValue(value.FieldByName(field.StructFieldName))
	}
	return out
}

// Identifier returns the identifier value of doc.
func Identifier(schema *SchemaCore, doc any) (any, error) {
	idField := schema.IdentifierField()
	if idField == nil {
		return nil, fmt.Errorf("%w: %s has no primary key", ErrNoIdentifier, schema.Name)
	}
	fv := structValue(doc).FieldByName(idField.StructFieldName)
	if !fv.IsValid() || fv.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrNoIdentifier, schema.Name)
	}
	return fieldValue(fv), nil
}

// identifierCondition builds the condition matching doc by identifier.
func identifierCondition(schema *SchemaCore, doc any) (*Condition, error) {
	id, err := Identifier(schema, doc)
	if err != nil {
		return nil, err
	}
	return Column(schema.IdentifierField().DatabaseColumnName).Eq(id), nil
}

// generateIdentifier assigns a new UUID to a generated identifier that is
// still empty. String fields receive the canonical text form.
func generateIdentifier(schema *SchemaCore, doc any) {
	idField := schema.IdentifierField()
	if idField == nil || !idField.IsGenerated {
		return
	}
	fv := structValue(doc).FieldByName(idField.StructFieldName)
	if !fv.IsValid() || !fv.CanSet() || !fv.IsZero() {
		return
	}
	id := uuid.New()
	switch {
	case fv.Type() == reflect.TypeOf(uuid.UUID{}):
		fv.Set(reflect.ValueOf(id))
	case fv.Kind() == reflect.String:
		fv.SetString(id.String())
	case fv.Kind() == reflect.Pointer && fv.Type().Elem().Kind() == reflect.String:
		s := id.String()
		fv.Set(reflect.ValueOf(&s).Convert(fv.Type()))
	}
}

// touchTimestamps sets the createdAt (when creating) and updatedAt fields.
func touchTimestamps(schema *SchemaCore, doc any, now time.Time, creating bool) {
	value := structValue(doc)
	if creating && schema.createdAtField != nil {
		setTimeField(value.FieldByName(schema.createdAtField.StructFieldName), now)
	}
	if schema.updatedAtField != nil {
		setTimeField(value.FieldByName(schema.updatedAtField.StructFieldName), now)
	}
}

// Include returns the Go struct field name given a selector function.
//
// Example:
//
//	nameField := Include(func(u *User) *string { return &u.Name })
func Include[L any, F any](selector func(*L) *F) string {
	return fieldNameFromSelectorFor[L](selector)
}

// setTimeField sets a time.Time value into a struct field, supporting both
// value and pointer kinds.
func setTimeField(field reflect.Value, t time.Time) {
	if !field.IsValid() || !field.CanSet() {
		return
	}
	timeType := reflect.TypeOf(time.Time{})

	switch field.Kind() {
	case reflect.Struct:
		if field.Type() == timeType {
			field.Set(reflect.ValueOf(t))
		}
	case reflect.Pointer:
		if field.Type().Elem() == timeType {
			if field.IsNil() {
				ptr := reflect.New(timeType)
				ptr.Elem().Set(reflect.ValueOf(t))
				field.Set(ptr)
			} else {
				field.Elem().Set(reflect.ValueOf(t))
			}
		}
	}
}
