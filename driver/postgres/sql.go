package postgres

import (
	"fmt"
	"strings"

	"github.com/leandroluk/oxm/core"
)

// quote quotes an identifier.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func tableName(schema *core.SchemaCore) string {
	if schema.Database != "" {
		return quote(schema.Database) + "." + quote(schema.Collection)
	}
	return quote(schema.Collection)
}

// buildCondition renders a condition tree as a WHERE expression, appending
// the bound values to argList.
func buildCondition(condition *core.Condition, argList *[]any) string {
	if condition == nil || condition.Operator == "" {
		return "TRUE"
	}
	if condition.Operator.Logical() {
		if len(condition.Children) == 0 {
			return "TRUE"
		}
		partList := make([]string, 0, len(condition.Children))
		for _, child := range condition.Children {
			partList = append(partList, buildCondition(child, argList))
		}
		switch condition.Operator {
		case core.OpAnd:
			return "(" + strings.Join(partList, " AND ") + ")"
		case core.OpOr:
			return "(" + strings.Join(partList, " OR ") + ")"
		case core.OpNot:
			return "NOT (" + strings.Join(partList, " AND ") + ")"
		}
		return "TRUE"
	}

	column := quote(condition.FieldName)
	bind := func(op string) string {
		*argList = append(*argList, condition.Value)
		return fmt.Sprintf("%s %s $%d", column, op, len(*argList))
	}
	switch condition.Operator {
	case core.OpNil:
		return column + " IS NULL"
	case core.OpEq:
		return bind("=")
	case core.OpGt:
		return bind(">")
	case core.OpGte:
		return bind(">=")
	case core.OpLt:
		return bind("<")
	case core.OpLte:
		return bind("<=")
	case core.OpLike:
		return bind("ILIKE")
	case core.OpIn:
		values, ok := condition.Value.([]any)
		if !ok {
			values = []any{condition.Value}
		}
		if len(values) == 0 {
			return "FALSE"
		}
		placeholderList := make([]string, 0, len(values))
		for _, v := range values {
			*argList = append(*argList, v)
			placeholderList = append(placeholderList, fmt.Sprintf("$%d", len(*argList)))
		}
		return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholderList, ", "))
	}
	return "TRUE"
}

// buildSelect renders a SELECT statement for query.
func buildSelect(schema *core.SchemaCore, query *core.Where, single bool) (string, []any) {
	columnList := make([]string, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		columnList = append(columnList, quote(field.DatabaseColumnName))
	}
	argList := []any{}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(columnList, ", "), tableName(schema), buildCondition(query.Condition, &argList))

	if len(query.Sort) > 0 {
		orderList := make([]string, 0, len(query.Sort))
		for _, s := range query.Sort {
			direction := "ASC"
			if s.Order < 0 {
				direction = "DESC"
			}
			orderList = append(orderList, quote(s.FieldName)+" "+direction)
		}
		sql += " ORDER BY " + strings.Join(orderList, ", ")
	}
	if single {
		sql += " LIMIT 1"
	} else {
		if query.Limit > 0 {
			sql += fmt.Sprintf(" LIMIT %d", query.Limit)
		}
		if query.Offset > 0 {
			sql += fmt.Sprintf(" OFFSET %d", query.Offset)
		}
	}
	return sql, argList
}

// buildInsert renders an INSERT statement for one document.
func buildInsert(schema *core.SchemaCore, doc any) (string, []any) {
	columnList := make([]string, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		columnList = append(columnList, quote(field.DatabaseColumnName))
	}
	valueList, placeholderList := core.StructValues(schema, doc)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName(schema), strings.Join(columnList, ", "), strings.Join(placeholderList, ", ")), valueList
}

// buildUpdate renders an UPDATE statement. Columns are sorted so statements
// are stable.
func buildUpdate(schema *core.SchemaCore, condition *core.Condition, changes core.Changes) (string, []any) {
	argList := []any{}
	setList := []string{}
	for _, column := range changes.Columns() {
		argList = append(argList, changes[column])
		setList = append(setList, fmt.Sprintf("%s = $%d", quote(column), len(argList)))
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		tableName(schema), strings.Join(setList, ", "), buildCondition(condition, &argList)), argList
}
