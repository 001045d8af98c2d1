// Package core provides the fundamental building blocks of the oxm document mapper.
// This file defines Query, the builder behind Model reads.
package core

// Query accumulates the filter, order, paging and soft-delete options of a
// read on documents of type T. Field references are resolved through the
// schema, so callers may use Go field names or column names.
//
// Example:
//
//	q := core.NewQuery(userSchema).
//		Filter(func(f core.Filter[User]) []*core.Condition {
//			return []*core.Condition{
//				f.Where("email").Like("%gmail.com"),
//				f.Where(func(u *User) *bool { return &u.Active }).Eq(true),
//			}
//		}).
//		OrderBy("CreatedAt", -1).
//		Limit(10)
//	users, _ := userModel.FindMany(q).Run(ctx)
type Query[T any] struct {
	schema *SchemaMeta[T]
	where  *Where
}

// NewQuery returns an empty query on schema.
func NewQuery[T any](schema *SchemaMeta[T]) *Query[T] {
	return &Query[T]{schema: schema, where: &Where{}}
}

// WithDeleted includes soft-deleted documents.
func (q *Query[T]) WithDeleted() *Query[T] {
	q.where.WithDeleted = true
	return q
}

// OnlyDeleted returns soft-deleted documents only.
func (q *Query[T]) OnlyDeleted() *Query[T] {
	q.where.OnlyDeleted = true
	return q
}

// column resolves a Go field name to its column; other names pass through.
func (q *Query[T]) column(name string) string {
	if q.schema != nil {
		if f := q.schema.FieldByName(name); f != nil {
			return f.DatabaseColumnName
		}
	}
	return name
}

// Where starts a condition on a field of T.
//
// field is either a selector returning a pointer to the struct field
// (func(*T) *F or func(*T) any) or a name, resolved first as a Go field name
// and then as a column name. Operators are applied to the returned condition.
//
// Example:
//
//	q.Where(func(u *User) *int { return &u.Age }).Gt(18)
//	q.Where("email").Like("%@example.com")
func (q *Query[T]) Where(field any) *Condition {
	name, ok := field.(string)
	if !ok {
		name = fieldNameFromSelectorFor[T](field)
	}
	return Column(q.column(name))
}

// Match ANDs conditions into the query filter.
func (q *Query[T]) Match(conditions ...*Condition) *Query[T] {
	q.where.Condition = foldConditionsAnd(append([]*Condition{q.where.Condition}, conditions...)...)
	return q
}

// Filter replaces the query filter with the AND of the conditions returned by
// build. A nil build clears the filter.
//
// Example:
//
//	q.Filter(func(f core.Filter[User]) []*core.Condition {
//		return []*core.Condition{f.Where("age").Gt(18), f.Where("active").Eq(true)}
//	})
func (q *Query[T]) Filter(build func(Filter[T]) []*Condition) *Query[T] {
	q.where.Condition = nil
	if build != nil {
		q.where.Condition = foldConditionsAnd(build(Filter[T]{query: q})...)
	}
	return q
}

// Filter is the scope handed to Query.Filter.
type Filter[T any] struct{ query *Query[T] }

// Where starts a condition on a field of T, as Query.Where does.
func (f Filter[T]) Where(field any) *Condition { return f.query.Where(field) }

// OrderBy appends a sort rule; order is 1 for ascending and -1 for descending.
func (q *Query[T]) OrderBy(field string, order int) *Query[T] {
	q.where.Sort = append(q.where.Sort, Sort{FieldName: q.column(field), Order: order})
	return q
}

// Limit caps the number of results. Zero means no limit.
func (q *Query[T]) Limit(limit int) *Query[T] {
	q.where.Limit = limit
	return q
}

// Offset skips the first offset results.
func (q *Query[T]) Offset(offset int) *Query[T] {
	q.where.Offset = offset
	return q
}

// String renders the query for logs.
func (q *Query[T]) String() string { return q.whereOrEmpty().String() }

// whereOrEmpty returns the query options, tolerating a nil query.
func (q *Query[T]) whereOrEmpty() *Where {
	if q == nil || q.where == nil {
		return &Where{}
	}
	return q.where
}
