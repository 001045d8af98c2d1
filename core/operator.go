// Package core provides the fundamental building blocks of the oxm document mapper.
// This file defines the operators of query conditions.
package core

// Operator is the operator of a Condition. The empty operator marks a
// condition that is not built yet; drivers treat it as matching everything.
type Operator string

const (
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
	OpNot Operator = "NOT"

	OpNil  Operator = "NIL"
	OpEq   Operator = "EQ"
	OpGt   Operator = "GT"
	OpGte  Operator = "GTE"
	OpLt   Operator = "LT"
	OpLte  Operator = "LTE"
	OpLike Operator = "LIKE" // case-insensitive; % and _ are wildcards
	OpIn   Operator = "IN"
)

// Logical reports whether op combines child conditions instead of testing a
// field.
func (op Operator) Logical() bool {
	switch op {
	case OpAnd, OpOr, OpNot:
		return true
	}
	return false
}

var operatorSymbols = map[Operator]string{
	OpEq:   "=",
	OpGt:   ">",
	OpGte:  ">=",
	OpLt:   "<",
	OpLte:  "<=",
	OpLike: "LIKE",
	OpIn:   "IN",
}
