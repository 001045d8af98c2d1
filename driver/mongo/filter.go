package mongo

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/leandroluk/oxm/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// likePattern converts a SQL LIKE pattern into an anchored regular expression:
// % matches any run of characters and _ a single one.
//
// Example:
//
//	likePattern("%admin_") // "^.*admin.$"
func likePattern(input string) string {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range input {
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
	return b.String()
}

// buildFilter translates a condition tree into a MongoDB filter document.
func buildFilter(condition *core.Condition) bson.M {
	if condition == nil || condition.Operator == "" {
		return bson.M{}
	}
	if condition.Operator.Logical() {
		if len(condition.Children) == 0 {
			return bson.M{}
		}
		childList := make([]bson.M, 0, len(condition.Children))
		for _, child := range condition.Children {
			childList = append(childList, buildFilter(child))
		}
		switch condition.Operator {
		case core.OpAnd:
			return bson.M{"$and": childList}
		case core.OpOr:
			return bson.M{"$or": childList}
		case core.OpNot:
			return bson.M{"$nor": childList}
		default:
			return bson.M{}
		}
	}

	field := condition.FieldName
	switch condition.Operator {
	case core.OpNil:
		return bson.M{field: bson.M{"$eq": nil}}
	case core.OpEq:
		return bson.M{field: condition.Value}
	case core.OpGt:
		return bson.M{field: bson.M{"$gt": condition.Value}}
	case core.OpGte:
		return bson.M{field: bson.M{"$gte": condition.Value}}
	case core.OpLt:
		return bson.M{field: bson.M{"$lt": condition.Value}}
	case core.OpLte:
		return bson.M{field: bson.M{"$lte": condition.Value}}
	case core.OpLike:
		return bson.M{field: primitive.Regex{Pattern: likePattern(fmt.Sprint(condition.Value)), Options: "i"}}
	case core.OpIn:
		values, ok := condition.Value.([]any)
		if !ok {
			values = []any{condition.Value}
		}
		return bson.M{field: bson.M{"$in": values}}
	default:
		return bson.M{}
	}
}

// buildSort translates sort rules into an ordered sort document.
func buildSort(sortList []core.Sort) bson.D {
	sortDoc := bson.D{}
	for _, s := range sortList {
		direction := 1
		if s.Order < 0 {
			direction = -1
		}
		sortDoc = append(sortDoc, bson.E{Key: s.FieldName, Value: direction})
	}
	return sortDoc
}
