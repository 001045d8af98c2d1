package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Mapping is the file representation of a class's mapping metadata.
type Mapping struct {
	Class      string         `json:"class" yaml:"class" toml:"class"`
	Database   string         `json:"database,omitempty" yaml:"database,omitempty" toml:"database,omitempty"`
	Collection string         `json:"collection,omitempty" yaml:"collection,omitempty" toml:"collection,omitempty"`
	Fields     []FieldMapping `json:"fields,omitempty" yaml:"fields,omitempty" toml:"fields,omitempty"`
}

// FieldMapping overrides the metadata of one struct field.
type FieldMapping struct {
	Name       string `json:"name" yaml:"name" toml:"name"` // Go struct field name
	Column     string `json:"column,omitempty" yaml:"column,omitempty" toml:"column,omitempty"`
	PrimaryKey bool   `json:"id,omitempty" yaml:"id,omitempty" toml:"id,omitempty"`
	Generated  bool   `json:"generated,omitempty" yaml:"generated,omitempty" toml:"generated,omitempty"`
	Unique     bool   `json:"unique,omitempty" yaml:"unique,omitempty" toml:"unique,omitempty"`
	Required   bool   `json:"required,omitempty" yaml:"required,omitempty" toml:"required,omitempty"`
	Default    string `json:"default,omitempty" yaml:"default,omitempty" toml:"default,omitempty"`
	Timestamp  string `json:"timestamp,omitempty" yaml:"timestamp,omitempty" toml:"timestamp,omitempty"` // created | updated | deleted
}

// MappingFile is the top-level structure of a mapping file.
type MappingFile struct {
	Mappings []Mapping `json:"mappings" yaml:"mappings" toml:"mappings"`
}

// LoadMappingFile reads mappings from a file based on its extension.
// Supports: .yaml/.yml, .toml
func LoadMappingFile(path string) ([]Mapping, error) {
	if path == "" {
		return nil, fmt.Errorf("empty mapping path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file MappingFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported mapping extension: %s", ext)
	}
	for i, m := range file.Mappings {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("%s: mapping %d: %w", path, i, err)
		}
	}
	return file.Mappings, nil
}

// Validate checks the mapping for missing names and unknown timestamp kinds.
func (m Mapping) Validate() error {
	if m.Class == "" {
		return fmt.Errorf("class is required")
	}
	seen := map[string]bool{}
	ids := 0
	for _, f := range m.Fields {
		if f.Name == "" {
			return fmt.Errorf("class %s: field name is required", m.Class)
		}
		if seen[f.Name] {
			return fmt.Errorf("class %s: field %s mapped twice", m.Class, f.Name)
		}
		seen[f.Name] = true
		if f.PrimaryKey {
			ids++
		}
		switch f.Timestamp {
		case "", "created", "updated", "deleted":
		default:
			return fmt.Errorf("class %s: field %s: unknown timestamp %q", m.Class, f.Name, f.Timestamp)
		}
	}
	if ids > 1 {
		return fmt.Errorf("class %s: more than one identifier", m.Class)
	}
	return nil
}

// FromMapping applies a Mapping to the schema being built. Fields named in the
// mapping that the struct does not have are ignored.
func FromMapping[T any](m Mapping) SchemaOption[T] {
	return func(b *SchemaBuilder[T]) {
		if m.Database != "" {
			b.database = m.Database
		}
		if m.Collection != "" {
			b.collection = m.Collection
		}
		if b.fields == nil {
			return
		}
		for _, fm := range m.Fields {
			for _, f := range b.fields {
				if f.StructFieldName != fm.Name {
					continue
				}
				if fm.Column != "" {
					f.DatabaseColumnName = fm.Column
				}
				f.IsPrimaryKey = f.IsPrimaryKey || fm.PrimaryKey
				f.IsGenerated = f.IsGenerated || fm.Generated
				f.IsUnique = f.IsUnique || fm.Unique
				f.IsRequired = f.IsRequired || fm.Required
				if fm.Default != "" {
					f.DefaultValue = fm.Default
				}
				switch fm.Timestamp {
				case "created":
					f.IsCreatedAt = true
				case "updated":
					f.IsUpdatedAt = true
				case "deleted":
					f.IsDeletedAt = true
				}
			}
		}
	}
}
