// Package core provides the fundamental building blocks of the oxm document mapper.
// This file defines query conditions, the filter language shared by models,
// bulk lifecycle events and drivers.
package core

import (
	"fmt"
	"strings"
)

// Condition is a node of a filter tree. Leaf conditions test FieldName (a
// column name) with Operator against Value; AND, OR and NOT nodes combine
// Children instead.
//
// Bulk Update and Delete hand the condition to preUpdate/postUpdate and
// preRemove/postRemove listeners, so it also describes which documents an
// event applies to.
//
// Example:
//
//	cond := core.Column("age").Gt(18).And(core.Column("status").Eq("active"))
type Condition struct {
	FieldName string
	Operator  Operator
	Value     any
	Children  []*Condition
}

// Column starts a condition on a column.
func Column(name string) *Condition {
	return &Condition{FieldName: name}
}

// And returns c AND every condition given.
func (c *Condition) And(conditions ...*Condition) *Condition {
	return &Condition{Operator: OpAnd, Children: append([]*Condition{c}, conditions...)}
}

// Or returns c OR every condition given.
func (c *Condition) Or(conditions ...*Condition) *Condition {
	return &Condition{Operator: OpOr, Children: append([]*Condition{c}, conditions...)}
}

// Not returns the negation of c.
func (c *Condition) Not() *Condition {
	return &Condition{Operator: OpNot, Children: []*Condition{c}}
}

func (c *Condition) set(op Operator, v any) *Condition {
	c.Operator = op
	c.Value = v
	return c
}

// Nil matches a missing or null value.
func (c *Condition) Nil() *Condition { return c.set(OpNil, nil) }

// Eq matches values equal to v.
func (c *Condition) Eq(v any) *Condition { return c.set(OpEq, v) }

// Gt matches values greater than v.
func (c *Condition) Gt(v any) *Condition { return c.set(OpGt, v) }

// Gte matches values greater than or equal to v.
func (c *Condition) Gte(v any) *Condition { return c.set(OpGte, v) }

// Lt matches values less than v.
func (c *Condition) Lt(v any) *Condition { return c.set(OpLt, v) }

// Lte matches values less than or equal to v.
func (c *Condition) Lte(v any) *Condition { return c.set(OpLte, v) }

// Like matches text against a LIKE pattern.
func (c *Condition) Like(pattern any) *Condition { return c.set(OpLike, pattern) }

// In matches values contained in values. An empty list matches nothing.
func (c *Condition) In(values ...any) *Condition { return c.set(OpIn, values) }

// String renders the condition for logs, e.g. (age > 18 AND deleted_at IS NULL).
func (c *Condition) String() string {
	if c == nil || c.Operator == "" {
		return "TRUE"
	}
	switch c.Operator {
	case OpAnd, OpOr:
		parts := make([]string, len(c.Children))
		for i, child := range c.Children {
			parts[i] = child.String()
		}
		return "(" + strings.Join(parts, " "+string(c.Operator)+" ") + ")"
	case OpNot:
		if len(c.Children) == 1 {
			return "NOT " + c.Children[0].String()
		}
		return "NOT " + (&Condition{Operator: OpAnd, Children: c.Children}).String()
	case OpNil:
		return c.FieldName + " IS NULL"
	}
	return fmt.Sprintf("%s %s %v", c.FieldName, operatorSymbols[c.Operator], c.Value)
}
