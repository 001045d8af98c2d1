// Package core provides the fundamental building blocks of the oxm document mapper.
// This file defines the schema system, which maps Go structs to document
// collections, describes fields and relations, and supports schema building.
package core

import (
	"reflect"

	"github.com/leandroluk/oxm/events"
)

// Field represents a struct field mapped to a document field or column.
type Field struct {
	StructFieldName    string       // Name of the field in the Go struct
	DatabaseColumnName string       // Name of the field in the stored document
	Type               reflect.Type // Go type of the field
	IsPrimaryKey       bool
	IsUnique           bool
	IsRequired         bool
	IsGenerated        bool // identifier assigned on insert when empty
	DefaultValue       string
	MemoryOffset       uintptr

	// Special timestamp markers
	IsCreatedAt bool
	IsUpdatedAt bool
	IsDeletedAt bool
}

// FieldOption is a function used to configure a Field.
type FieldOption func(*Field)

// PrimaryKey marks the field as the document identifier.
func PrimaryKey() FieldOption {
	return func(f *Field) { f.IsPrimaryKey = true }
}

// Generated marks the identifier as generated: when it is empty on insert a
// UUID is assigned, before the insert and therefore before postPersist.
func Generated() FieldOption {
	return func(f *Field) { f.IsGenerated = true }
}

// Unique marks the field as unique.
func Unique() FieldOption {
	return func(f *Field) { f.IsUnique = true }
}

// Required marks the field as required (non-nullable).
func Required() FieldOption {
	return func(f *Field) { f.IsRequired = true }
}

// Default sets a default value for the field.
func Default(value string) FieldOption {
	return func(f *Field) { f.DefaultValue = value }
}

// CreatedAt marks the field as the createdAt timestamp.
func CreatedAt() FieldOption {
	return func(f *Field) { f.IsCreatedAt = true }
}

// UpdatedAt marks the field as the updatedAt timestamp.
func UpdatedAt() FieldOption {
	return func(f *Field) { f.IsUpdatedAt = true }
}

// DeletedAt marks the field as the deletedAt timestamp (for soft deletes).
func DeletedAt() FieldOption {
	return func(f *Field) { f.IsDeletedAt = true }
}

// SchemaCore contains the schema information required at runtime, independent
// of the document's Go type parameter.
type SchemaCore struct {
	Name       string       // class name, the Go type name
	Type       reflect.Type // struct type of the documents
	Database   string
	Collection string
	Fields     []*Field

	fieldsByOffset map[uintptr]*Field
	callbackList   map[events.Name][]callback
	relationList   []RelationInternal

	identifierField *Field
	createdAtField  *Field
	updatedAtField  *Field
	deletedAtField  *Field
}

// IdentifierField returns the primary key field, or nil when none is marked.
func (s *SchemaCore) IdentifierField() *Field { return s.identifierField }

// FieldByColumn returns the field mapped to column, or nil.
func (s *SchemaCore) FieldByColumn(column string) *Field {
	for _, f := range s.Fields {
		if f.DatabaseColumnName == column {
			return f
		}
	}
	return nil
}

// FieldByName returns the field backed by the Go struct field name, or nil.
func (s *SchemaCore) FieldByName(name string) *Field {
	for _, f := range s.Fields {
		if f.StructFieldName == name {
			return f
		}
	}
	return nil
}

// Relations returns the relations registered on the schema.
func (s *SchemaCore) Relations() []RelationInternal { return s.relationList }

// refreshSpecialFields caches the identifier and timestamp fields. It runs
// after building and again after loadClassMetadata listeners had a chance to
// change the field list.
func (s *SchemaCore) refreshSpecialFields() {
	s.identifierField, s.createdAtField, s.updatedAtField, s.deletedAtField = nil, nil, nil, nil
	for _, f := range s.Fields {
		if f.IsPrimaryKey && s.identifierField == nil {
			s.identifierField = f
		}
		if f.IsCreatedAt {
			s.createdAtField = f
		}
		if f.IsUpdatedAt {
			s.updatedAtField = f
		}
		if f.IsDeletedAt {
			s.deletedAtField = f
		}
	}
}

// RelationKind defines the type of relationship between documents.
type RelationKind int

const (
	OneToOne   RelationKind = 1
	OneToMany  RelationKind = 2
	ManyToMany RelationKind = 3
)

// Relation describes a relationship between two schemas in a generic form.
//
// L = Local type, F = Foreign type, J = Join type (for many-to-many).
type Relation[L any, F any, J any] struct {
	Kind           RelationKind
	Field          any            // func(*L) *<FieldType in L> (e.g. *[]Role)
	RefSchema      *SchemaMeta[F] // Schema of the foreign document
	LocalKey       any            // func(*L) *<KeyType in L>
	ForeignKey     any            // func(*F) *<KeyType in F>
	JoinTable      string         // Join collection name (for many-to-many)
	JoinLocalKey   any            // func(*J) *<KeyType in J> (many-to-many)
	JoinForeignKey any            // func(*J) *<KeyType in J> (many-to-many)
}

// RelationInternal is the normalized runtime representation of a relation.
//
// Unlike Relation, it stores resolved field names instead of selector functions.
type RelationInternal struct {
	Kind           RelationKind
	FieldName      string
	RefSchema      *SchemaCore
	LocalKey       string
	ForeignKey     string
	JoinTable      string
	JoinLocalKey   string
	JoinForeignKey string
}

// SchemaMeta is the typed schema of documents of type T.
type SchemaMeta[T any] struct {
	SchemaCore
}

// Core returns the untyped part of the schema.
func (s *SchemaMeta[T]) Core() *SchemaCore { return &s.SchemaCore }

// AddRelation resolves selectors into field names and adds the relation
// to the schema.
func AddRelation[L any, F any, J any](schema *SchemaMeta[L], r Relation[L, F, J]) {
	internal := RelationInternal{
		Kind:           r.Kind,
		FieldName:      fieldNameFromSelectorFor[L](r.Field),
		RefSchema:      r.RefSchema.Core(),
		LocalKey:       fieldNameFromSelectorFor[L](r.LocalKey),
		ForeignKey:     columnOf(r.RefSchema.Core(), fieldNameFromSelectorFor[F](r.ForeignKey)),
		JoinTable:      r.JoinTable,
		JoinLocalKey:   fieldNameFromSelectorFor[J](r.JoinLocalKey),
		JoinForeignKey: fieldNameFromSelectorFor[J](r.JoinForeignKey),
	}
	schema.relationList = append(schema.relationList, internal)
}

// findRelation finds a registered relation by field name.
func (s *SchemaCore) findRelation(name string) *RelationInternal {
	for i := range s.relationList {
		if s.relationList[i].FieldName == name {
			return &s.relationList[i]
		}
	}
	return nil
}

// columnOf maps a Go field name to its column name, falling back to the name.
func columnOf(schema *SchemaCore, fieldName string) string {
	if f := schema.FieldByName(fieldName); f != nil {
		return f.DatabaseColumnName
	}
	return fieldName
}

// SchemaBuilder is used to construct a schema definition from a Go struct.
//
// It collects field metadata using reflection and applies customization
// through SchemaOptions.
type SchemaBuilder[T any] struct {
	database       string
	collection     string
	tagKey         string
	structType     reflect.Type
	fields         []*Field
	fieldsByOffset map[uintptr]*Field
}

// SchemaOption represents a function that customizes the schema builder.
type SchemaOption[T any] func(*SchemaBuilder[T])

// TagKey sets the struct tag key to use for column mapping.
func TagKey[T any](key string) SchemaOption[T] {
	return func(schemaBuilder *SchemaBuilder[T]) { schemaBuilder.tagKey = key }
}

// Table sets the collection name for the schema.
func Table[T any](name string) SchemaOption[T] {
	return func(schemaBuilder *SchemaBuilder[T]) { schemaBuilder.collection = name }
}

// Database sets the database name for the schema.
func Database[T any](name string) SchemaOption[T] {
	return func(schemaBuilder *SchemaBuilder[T]) { schemaBuilder.database = name }
}

// OverrideField allows modifying the metadata of a specific field
// (e.g., making it required, unique, primary key, etc.).
func OverrideField[T any, F any](selector func(*T) *F, opts ...FieldOption) SchemaOption[T] {
	return func(schemaBuilder *SchemaBuilder[T]) {
		if schemaBuilder.fields == nil {
			return
		}
		offset := offsetOf(selector)
		if field, ok := schemaBuilder.fieldsByOffset[offset]; ok {
			for _, opt := range opts {
				opt(field)
			}
		} else {
			panic("core: OverrideField: field not found by selector")
		}
	}
}

// Schema builds a SchemaMeta[T] by reflecting on struct fields and applying
// the given SchemaOptions.
//
// Column names come from the `db` struct tag (or the key set with TagKey) and
// default to the Go field name. The collection defaults to the type name.
//
// Schema does not raise loadClassMetadata; use SchemaFor with a
// MetadataFactory for that.
func Schema[T any](options ...SchemaOption[T]) *SchemaMeta[T] {
	var zero T
	structType := reflect.TypeOf(zero)
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}

	builder := &SchemaBuilder[T]{
		structType:     structType,
		fieldsByOffset: make(map[uintptr]*Field),
	}

	// Apply options before building fields (Table/Database/TagKey/etc.)
	for _, option := range options {
		option(builder)
	}

	tagKey := builder.tagKey
	if tagKey == "" {
		tagKey = "db"
	}
	builder.fields = []*Field{}
	for _, sf := range reflect.VisibleFields(structType) {
		if !sf.IsExported() || sf.Anonymous || len(sf.Index) > 1 {
			continue
		}
		dbName := sf.Tag.Get(tagKey)
		if dbName == "-" {
			continue
		}
		if dbName == "" {
			dbName = sf.Name
		}

		field := &Field{
			StructFieldName:    sf.Name,
			DatabaseColumnName: dbName,
			Type:               sf.Type,
			MemoryOffset:       sf.Offset,
		}
		builder.fields = append(builder.fields, field)
		builder.fieldsByOffset[sf.Offset] = field
	}

	// Re-apply options so that OverrideField can work after fields exist
	for _, option := range options {
		option(builder)
	}

	collection := builder.collection
	if collection == "" {
		collection = structType.Name()
	}

	meta := &SchemaMeta[T]{
		SchemaCore: SchemaCore{
			Name:           structType.Name(),
			Type:           structType,
			Database:       builder.database,
			Collection:     collection,
			Fields:         builder.fields,
			fieldsByOffset: builder.fieldsByOffset,
			callbackList:   make(map[events.Name][]callback),
		},
	}
	meta.refreshSpecialFields()
	return meta
}
