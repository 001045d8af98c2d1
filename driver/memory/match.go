package memory

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/leandroluk/oxm/core"
)

// matches evaluates a condition tree against a row. A nil condition, and a
// logical node without children, match every row.
func matches(condition *core.Condition, row map[string]any) bool {
	if condition == nil || condition.Operator == "" {
		return true
	}
	if condition.Operator.Logical() && len(condition.Children) == 0 {
		return true
	}
	switch condition.Operator {
	case core.OpAnd:
		for _, child := range condition.Children {
			if !matches(child, row) {
				return false
			}
		}
		return true
	case core.OpOr:
		for _, child := range condition.Children {
			if matches(child, row) {
				return true
			}
		}
		return false
	case core.OpNot:
		for _, child := range condition.Children {
			if !matches(child, row) {
				return true
			}
		}
		return false
	}

	value := row[condition.FieldName]
	switch condition.Operator {
	case core.OpNil:
		return isNil(value)
	case core.OpEq:
		return equal(value, condition.Value)
	case core.OpGt:
		return !isNil(value) && compare(value, condition.Value) > 0
	case core.OpGte:
		return !isNil(value) && compare(value, condition.Value) >= 0
	case core.OpLt:
		return !isNil(value) && compare(value, condition.Value) < 0
	case core.OpLte:
		return !isNil(value) && compare(value, condition.Value) <= 0
	case core.OpLike:
		if isNil(value) {
			return false
		}
		return likeRegexp(fmt.Sprint(condition.Value)).MatchString(fmt.Sprint(value))
	case core.OpIn:
		values, ok := condition.Value.([]any)
		if !ok {
			values = []any{condition.Value}
		}
		for _, v := range values {
			if equal(value, v) {
				return true
			}
		}
		return false
	}
	return false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

func equal(a, b any) bool {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b)
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	_, okA := number(a)
	_, okB := number(b)
	if okA && okB {
		return compare(a, b) == 0
	}
	return fmt.Sprint(a) == fmt.Sprint(b) && reflect.TypeOf(a).Kind() == reflect.TypeOf(b).Kind()
}

func number(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// compare orders numbers, times and strings. Nil sorts first; values of
// unrelated types compare by their text form.
func compare(a, b any) int {
	switch {
	case isNil(a) && isNil(b):
		return 0
	case isNil(a):
		return -1
	case isNil(b):
		return 1
	}
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	if x, ok := a.(time.Time); ok {
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// likeRegexp compiles a case-insensitive, anchored regular expression for a
// SQL LIKE pattern.
func likeRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return regexp.MustCompile(b.String())
}
