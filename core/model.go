// Package core provides the fundamental building blocks of the oxm document mapper.
// This file defines the Model[T], a repository bound to one schema. A Model
// executes operations immediately (without a unit of work), running lifecycle
// callbacks and dispatching lifecycle events around each driver call.
package core

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/leandroluk/oxm/events"
)

// Model represents a repository-like abstraction for a schema T.
//
// It wraps a SchemaMeta[T], a Driver and an EventManager, exposing operations
// such as Create, Save, Remove, FindOne, FindMany, Refresh and Count.
type Model[T any] struct {
	schema *SchemaMeta[T]
	driver Driver
	events *EventManager
}

// NewModel creates a new Model bound to a schema and driver, raising events
// on the default event manager.
//
// Example:
//
//	userModel := core.NewModel(userSchema, mongoDriver)
func NewModel[T any](schema *SchemaMeta[T], driver Driver) *Model[T] {
	return &Model[T]{schema: schema, driver: driver, events: globalManager}
}

// WithEvents returns a copy of the model raising events on em.
func (m *Model[T]) WithEvents(em *EventManager) *Model[T] {
	return &Model[T]{schema: m.schema, driver: m.driver, events: em}
}

// Schema returns the schema of the model.
func (m *Model[T]) Schema() *SchemaMeta[T] { return m.schema }

// WithTenant creates a new Model[T] instance bound to a different database.
//
// It clones the schema and replaces only the Database name in SchemaCore.
// This is useful for multi-tenant or sharded architectures.
func (m *Model[T]) WithTenant(database string) *Model[T] {
	cloneSchema := *m.schema
	cloneSchema.Database = database
	return &Model[T]{schema: &cloneSchema, driver: m.driver, events: m.events}
}

// raise runs the schema callbacks of a document event and then dispatches it.
func raise(ctx context.Context, em *EventManager, schema *SchemaCore, args EventArgs) error {
	if doc := DocumentOf(args); doc != nil {
		if err := schema.InvokeCallbacks(args.Event(), doc); err != nil {
			return err
		}
	}
	return em.Dispatch(ctx, args)
}

func (m *Model[T]) raise(ctx context.Context, name events.Name, doc *T, condition *Condition) error {
	args := &LifecycleEventArgs{Name: name, Schema: m.schema.Core(), Condition: condition}
	if doc != nil {
		args.Document = doc
	}
	return raise(ctx, m.events, m.schema.Core(), args)
}

// Create inserts a new document.
//
// It sets createdAt and updatedAt, raises prePersist, assigns a generated
// identifier, inserts through the driver and raises postPersist. Listeners of
// postPersist observe the generated identifier.
func (m *Model[T]) Create(ctx context.Context, doc *T) error {
	return dispatchOperation(ctx, OperationInsert, doc, func() error {
		schema := m.schema.Core()
		touchTimestamps(schema, doc, time.Now(), true)
		if err := m.raise(ctx, events.PrePersist, doc, nil); err != nil {
			return err
		}
		generateIdentifier(schema, doc)
		if err := m.driver.Insert(ctx, schema, doc); err != nil {
			return err
		}
		return m.raise(ctx, events.PostPersist, doc, nil)
	})
}

// Save writes every field of an existing document, matched by identifier.
//
// preUpdate listeners receive the full field set as the change-set (old values
// are unknown) and may change new values before they are written.
func (m *Model[T]) Save(ctx context.Context, doc *T) error {
	return dispatchOperation(ctx, OperationUpdate, doc, func() error {
		schema := m.schema.Core()
		condition, err := identifierCondition(schema, doc)
		if err != nil {
			return err
		}
		touchTimestamps(schema, doc, time.Now(), false)
		snapshot := Snapshot(schema, doc)
		delete(snapshot, schema.IdentifierField().DatabaseColumnName)

		args := &PreUpdateEventArgs{
			LifecycleEventArgs: LifecycleEventArgs{Name: events.PreUpdate, Schema: schema, Document: doc, Condition: condition},
			ChangeSet:          changeSetFromChanges(snapshot),
		}
		if err := raise(ctx, m.events, schema, args); err != nil {
			return err
		}
		if err := m.driver.Update(ctx, schema, condition, args.ChangeSet.Changes()); err != nil {
			return err
		}
		return m.raise(ctx, events.PostUpdate, doc, condition)
	})
}

// Update applies changes to documents matching a condition.
//
// It sets the updatedAt column on a copy of changes, raises preUpdate and postUpdate with a nil
// Document and performs the update through the driver. Lifecycle callbacks do
// not run for bulk updates.
func (m *Model[T]) Update(ctx context.Context, condition *Condition, changes Changes) error {
	return dispatchOperation(ctx, OperationUpdate, changes, func() error {
		schema := m.schema.Core()
		columns := make(Changes, len(changes)+1)
		for column, value := range changes {
			columns[column] = value
		}
		if schema.updatedAtField != nil {
			columns[schema.updatedAtField.DatabaseColumnName] = time.Now()
		}
		args := &PreUpdateEventArgs{
			LifecycleEventArgs: LifecycleEventArgs{Name: events.PreUpdate, Schema: schema, Condition: condition},
			ChangeSet:          changeSetFromChanges(columns),
		}
		if err := m.events.Dispatch(ctx, args); err != nil {
			return err
		}
		if err := m.driver.Update(ctx, schema, condition, args.ChangeSet.Changes()); err != nil {
			return err
		}
		return m.events.Dispatch(ctx, &LifecycleEventArgs{Name: events.PostUpdate, Schema: schema, Condition: condition})
	})
}

// Remove deletes one document, matched by identifier.
//
// If the schema has a deletedAt field the document is soft-deleted: the field
// is set on the document and written instead of deleting the record.
func (m *Model[T]) Remove(ctx context.Context, doc *T) error {
	return dispatchOperation(ctx, OperationDelete, doc, func() error {
		schema := m.schema.Core()
		condition, err := identifierCondition(schema, doc)
		if err != nil {
			return err
		}
		if err := m.raise(ctx, events.PreRemove, doc, condition); err != nil {
			return err
		}
		if err := removeDocument(ctx, m.driver, schema, doc, condition); err != nil {
			return err
		}
		return m.raise(ctx, events.PostRemove, doc, condition)
	})
}

// removeDocument deletes or soft-deletes the documents matching condition.
// doc may be nil for bulk removals.
func removeDocument(ctx context.Context, driver Driver, schema *SchemaCore, doc any, condition *Condition) error {
	if schema.deletedAtField == nil {
		return driver.Delete(ctx, schema, condition)
	}
	now := time.Now()
	if doc != nil {
		setTimeField(structValue(doc).FieldByName(schema.deletedAtField.StructFieldName), now)
	}
	return driver.Update(ctx, schema, condition, Changes{schema.deletedAtField.DatabaseColumnName: now})
}

// Delete removes documents matching a condition.
//
// It raises preRemove and postRemove with a nil Document. Soft-delete applies
// as for Remove.
func (m *Model[T]) Delete(ctx context.Context, condition *Condition) error {
	return dispatchOperation(ctx, OperationDelete, condition, func() error {
		schema := m.schema.Core()
		if err := m.events.Dispatch(ctx, &LifecycleEventArgs{Name: events.PreRemove, Schema: schema, Condition: condition}); err != nil {
			return err
		}
		if err := removeDocument(ctx, m.driver, schema, nil, condition); err != nil {
			return err
		}
		return m.events.Dispatch(ctx, &LifecycleEventArgs{Name: events.PostRemove, Schema: schema, Condition: condition})
	})
}

// FindOneQuery is a single-document query with optional relation loading.
type FindOneQuery[T any] struct {
	model           *Model[T]
	query           *Query[T]
	includeNameList []string
}

// FindOne prepares a query returning the first matching document.
func (m *Model[T]) FindOne(query *Query[T]) *FindOneQuery[T] {
	return &FindOneQuery[T]{model: m, query: query}
}

// Include requests a relation to be loaded. The selector returns a pointer to
// the relation field.
//
// Example:
//
//	user, err := userModel.FindOne(q).Include(func(u *User) any { return &u.Roles }).Run(ctx)
func (q *FindOneQuery[T]) Include(selector func(*T) any) *FindOneQuery[T] {
	q.includeNameList = append(q.includeNameList, fieldNameFromSelectorFor[T](selector))
	return q
}

// Run executes the query. It returns nil and no error when nothing matches.
func (q *FindOneQuery[T]) Run(ctx context.Context) (*T, error) {
	return q.model.findOneInternal(ctx, q.query.whereOrEmpty(), q.includeNameList...)
}

// FindManyQuery is a multi-document query with optional relation loading.
type FindManyQuery[T any] struct {
	model        *Model[T]
	query        *Query[T]
	includeNames []string
}

// FindMany prepares a query returning every matching document.
func (m *Model[T]) FindMany(query *Query[T]) *FindManyQuery[T] {
	return &FindManyQuery[T]{model: m, query: query}
}

// Include requests a relation to be loaded on every result.
func (q *FindManyQuery[T]) Include(selector func(*T) any) *FindManyQuery[T] {
	q.includeNames = append(q.includeNames, fieldNameFromSelectorFor[T](selector))
	return q
}

// Run executes the query.
func (q *FindManyQuery[T]) Run(ctx context.Context) ([]T, error) {
	return q.model.findManyInternal(ctx, q.query.whereOrEmpty(), q.includeNames...)
}

// Find returns the document with the given identifier, or ErrDocumentNotFound.
func (m *Model[T]) Find(ctx context.Context, id any) (*T, error) {
	idField := m.schema.IdentifierField()
	if idField == nil {
		return nil, fmt.Errorf("%w: %s has no primary key", ErrNoIdentifier, m.schema.Name)
	}
	doc, err := m.findOneInternal(ctx, &Where{Condition: Column(idField.DatabaseColumnName).Eq(id)})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s %v", ErrDocumentNotFound, m.schema.Name, id)
	}
	return doc, nil
}

// findOneInternal loads the first document matching where.
//
// preLoad and postLoad are raised for the document, and relations are only
// loaded after postLoad.
func (m *Model[T]) findOneInternal(ctx context.Context, where *Where, relationList ...string) (*T, error) {
	schema := m.schema.Core()
	where = withSoftDelete(schema, where)

	var result *T
	err := dispatchOperation(ctx, OperationFind, where, func() error {
		raw, err := m.driver.FindOne(ctx, schema, where)
		if err != nil || raw == nil {
			return err
		}
		row, ok := raw.(map[string]any)
		if !ok {
			return nil
		}
		value := new(T)
		if err := loadDocument(ctx, m.events, schema, row, reflect.ValueOf(value)); err != nil {
			return err
		}
		if err := loadRelations(ctx, m.driver, m.events, schema, reflect.ValueOf(value).Elem(), relationList); err != nil {
			return err
		}
		result = value
		return nil
	})
	return result, err
}

// findManyInternal loads every document matching where.
func (m *Model[T]) findManyInternal(ctx context.Context, where *Where, relationList ...string) ([]T, error) {
	schema := m.schema.Core()
	where = withSoftDelete(schema, where)

	var results []T
	err := dispatchOperation(ctx, OperationFind, where, func() error {
		raw, err := m.driver.FindMany(ctx, schema, where)
		if err != nil || raw == nil {
			return err
		}
		rows, ok := raw.([]map[string]any)
		if !ok {
			return nil
		}
		for _, row := range rows {
			value := new(T)
			if err := loadDocument(ctx, m.events, schema, row, reflect.ValueOf(value)); err != nil {
				return err
			}
			if err := loadRelations(ctx, m.driver, m.events, schema, reflect.ValueOf(value).Elem(), relationList); err != nil {
				return err
			}
			results = append(results, *value)
		}
		return nil
	})
	return results, err
}

// Refresh reloads doc from the database by identifier, overwriting its fields.
func (m *Model[T]) Refresh(ctx context.Context, doc *T) error {
	return refreshDocument(ctx, m.driver, m.events, m.schema.Core(), doc)
}

// refreshDocument raises preLoad, reloads doc by identifier and raises postLoad.
func refreshDocument(ctx context.Context, driver Driver, em *EventManager, schema *SchemaCore, doc any) error {
	condition, err := identifierCondition(schema, doc)
	if err != nil {
		return err
	}
	return dispatchOperation(ctx, OperationFind, condition, func() error {
		raw, err := driver.FindOne(ctx, schema, &Where{Condition: condition, WithDeleted: true})
		if err != nil {
			return err
		}
		row, ok := raw.(map[string]any)
		if raw == nil || !ok {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, schema.Name)
		}
		return loadDocument(ctx, em, schema, row, reflect.ValueOf(doc))
	})
}

// Count returns the number of documents matching the query.
//
// It applies soft-delete rules automatically and delegates counting to the driver.
func (m *Model[T]) Count(ctx context.Context, qb *Query[T]) (int64, error) {
	schema := m.schema.Core()
	where := withSoftDelete(schema, qb.whereOrEmpty())
	var count int64
	err := dispatchOperation(ctx, OperationFind, qb, func() error {
		var err error
		count, err = m.driver.Count(ctx, schema, where.Condition)
		return err
	})
	return count, err
}

// LoadRelation explicitly loads one or more relations into a given document.
//
// It accepts pointers to struct fields that represent relations and resolves
// their values from the database.
//
// Example:
//
//	var user User
//	_ = userModel.LoadRelation(ctx, &user, &user.Profile, &user.Roles)
func (m *Model[T]) LoadRelation(ctx context.Context, doc *T, fieldPtrs ...any) error {
	value := reflect.ValueOf(doc).Elem()

	nameList := make([]string, 0, len(fieldPtrs))
	for _, ptr := range fieldPtrs {
		rv := reflect.ValueOf(ptr)
		if rv.Kind() != reflect.Pointer {
			return fmt.Errorf("LoadRelation: argument must be a pointer to a field")
		}

		fieldName := ""
		for i := 0; i < value.NumField(); i++ {
			field := value.Field(i)
			if field.CanAddr() && field.Addr().Pointer() == rv.Pointer() && field.Type() == rv.Type().Elem() {
				fieldName = value.Type().Field(i).Name
				break
			}
		}
		if fieldName == "" {
			return fmt.Errorf("LoadRelation: field not found for pointer %v", ptr)
		}
		nameList = append(nameList, fieldName)
	}
	return loadRelations(ctx, m.driver, m.events, m.schema.Core(), value, nameList)
}
