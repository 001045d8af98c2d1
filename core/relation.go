// Package core provides the fundamental building blocks of the oxm document mapper.
// This file hydrates documents from driver rows and resolves their relations.
package core

import (
	"context"
	"reflect"

	"github.com/leandroluk/oxm/events"
)

// withSoftDelete applies soft-delete filtering rules to a query.
// It excludes deleted records unless WithDeleted or OnlyDeleted flags are set
// in the query options.
func withSoftDelete(schema *SchemaCore, where *Where) *Where {
	if where == nil {
		where = &Where{}
	}
	if schema.deletedAtField == nil {
		return where
	}
	eff := *where // shallow copy
	col := schema.deletedAtField.DatabaseColumnName

	if where.OnlyDeleted {
		eff.Condition = foldConditionsAnd(
			where.Condition,
			Column(col).Nil().Not(),
		)
		return &eff
	}
	if !where.WithDeleted {
		eff.Condition = foldConditionsAnd(
			where.Condition,
			Column(col).Nil(),
		)
	}
	return &eff
}

// loadDocument hydrates target (a pointer to a struct) from row, raising
// preLoad before the fields are assigned and postLoad after.
func loadDocument(ctx context.Context, em *EventManager, schema *SchemaCore, row map[string]any, target reflect.Value) error {
	doc := target.Interface()
	if err := raise(ctx, em, schema, &LifecycleEventArgs{Name: events.PreLoad, Schema: schema, Document: doc}); err != nil {
		return err
	}
	if err := mapToValue(schema, row, target.Elem()); err != nil {
		return err
	}
	return raise(ctx, em, schema, &LifecycleEventArgs{Name: events.PostLoad, Schema: schema, Document: doc})
}

// loadRelations resolves and loads the named relations into a document.
//
// It supports OneToOne, OneToMany and ManyToMany relations by issuing
// additional queries against the related schemas. Related documents raise
// their own preLoad and postLoad events.
func loadRelations(ctx context.Context, driver Driver, em *EventManager, schema *SchemaCore, value reflect.Value, nameList []string) error {
	for _, relationName := range nameList {
		relation := schema.findRelation(relationName)
		if relation == nil || relation.RefSchema == nil {
			continue
		}

		field := value.FieldByName(relation.FieldName)
		if !field.IsValid() || !field.CanSet() {
			continue
		}
		localVal := fieldValue(value.FieldByName(relation.LocalKey))

		switch relation.Kind {
		case OneToOne:
			where := withSoftDelete(relation.RefSchema, &Where{
				Condition: Column(relation.ForeignKey).Eq(localVal),
			})
			raw, err := driver.FindOne(ctx, relation.RefSchema, where)
			if err != nil {
				return err
			}
			row, ok := raw.(map[string]any)
			if raw == nil || !ok {
				continue
			}
			target := reflect.New(relation.RefSchema.Type)
			if err := loadDocument(ctx, em, relation.RefSchema, row, target); err != nil {
				return err
			}
			assignRelated(field, target)

		case OneToMany:
			where := withSoftDelete(relation.RefSchema, &Where{
				Condition: Column(relation.ForeignKey).Eq(localVal),
			})
			if err := loadMany(ctx, driver, em, relation.RefSchema, where, field); err != nil {
				return err
			}

		case ManyToMany:
			// 1) fetch join rows where JoinLocalKey = localVal
			joinQuery := &Where{
				Condition: Column(relation.JoinLocalKey).Eq(localVal),
			}
			rawJoin, err := driver.FindMany(ctx, &SchemaCore{Collection: relation.JoinTable}, joinQuery)
			if err != nil {
				return err
			}
			joinRows, _ := rawJoin.([]map[string]any)

			// 2) extract foreign IDs
			foreignIDs := make([]any, 0, len(joinRows))
			for _, jr := range joinRows {
				foreignIDs = append(foreignIDs, jr[relation.JoinForeignKey])
			}
			if len(foreignIDs) == 0 {
				continue
			}

			// 3) fetch related documents by IN condition
			where := withSoftDelete(relation.RefSchema, &Where{
				Condition: Column(relation.ForeignKey).In(foreignIDs...),
			})
			if err := loadMany(ctx, driver, em, relation.RefSchema, where, field); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadMany hydrates every row matching where into the slice field.
func loadMany(ctx context.Context, driver Driver, em *EventManager, schema *SchemaCore, where *Where, field reflect.Value) error {
	if field.Kind() != reflect.Slice {
		return nil
	}
	raw, err := driver.FindMany(ctx, schema, where)
	if err != nil {
		return err
	}
	rows, _ := raw.([]map[string]any)
	out := reflect.MakeSlice(field.Type(), 0, len(rows))
	for _, row := range rows {
		target := reflect.New(schema.Type)
		if err := loadDocument(ctx, em, schema, row, target); err != nil {
			return err
		}
		if field.Type().Elem().Kind() == reflect.Pointer {
			out = reflect.Append(out, target)
		} else {
			out = reflect.Append(out, target.Elem())
		}
	}
	field.Set(out)
	return nil
}

// assignRelated stores a loaded document in a value or pointer field.
func assignRelated(field reflect.Value, target reflect.Value) {
	if field.Kind() == reflect.Pointer {
		field.Set(target)
		return
	}
	field.Set(target.Elem())
}
