// Package core provides the fundamental building blocks of the oxm document mapper.
// This file defines the metadata factory, which loads the schema of each
// document class once and announces it with loadClassMetadata.
package core

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// MetadataFactory loads and caches the schema of each document type.
//
// A class's schema is built from its struct tags, the SchemaOptions given on
// first use and any Mapping registered for the class name. loadClassMetadata
// fires exactly once per class, before the schema is returned to any caller.
type MetadataFactory struct {
	events *EventManager

	mutex    sync.Mutex
	mappings map[string]Mapping
	entries  map[reflect.Type]*metadataEntry
}

type metadataEntry struct {
	done   chan struct{}
	schema any // *SchemaMeta[T]
	core   *SchemaCore
	err    error
}

// NewMetadataFactory creates a factory raising loadClassMetadata on em. A nil
// em selects the default event manager.
func NewMetadataFactory(em *EventManager, mappings ...Mapping) *MetadataFactory {
	if em == nil {
		em = globalManager
	}
	f := &MetadataFactory{
		events:   em,
		mappings: make(map[string]Mapping),
		entries:  make(map[reflect.Type]*metadataEntry),
	}
	for _, m := range mappings {
		f.AddMapping(m)
	}
	return f
}

// Events returns the event manager used by the factory.
func (f *MetadataFactory) Events() *EventManager { return f.events }

// AddMapping registers a mapping for a class. It only affects classes that are
// not loaded yet.
func (f *MetadataFactory) AddMapping(m Mapping) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.mappings[m.Class] = m
}

// LoadMappingFile registers every mapping found in a yaml or toml file.
func (f *MetadataFactory) LoadMappingFile(path string) error {
	mappings, err := LoadMappingFile(path)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		f.AddMapping(m)
	}
	return nil
}

// MappingFor returns the registered mapping of a class.
func (f *MetadataFactory) MappingFor(class string) (Mapping, bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	m, ok := f.mappings[class]
	return m, ok
}

// Mappings returns the registered mappings ordered by class name.
func (f *MetadataFactory) Mappings() []Mapping {
	f.mutex.Lock()
	out := make([]Mapping, 0, len(f.mappings))
	for _, m := range f.mappings {
		out = append(out, m)
	}
	f.mutex.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}

// MetadataFor returns the loaded schema of a struct type (or pointer to one).
func (f *MetadataFactory) MetadataFor(t reflect.Type) (*SchemaCore, bool) {
	if t == nil {
		return nil, false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	f.mutex.Lock()
	entry, ok := f.entries[t]
	f.mutex.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-entry.done:
		if entry.err != nil {
			return nil, false
		}
		return entry.core, true
	default:
		return nil, false
	}
}

// MetadataOf returns the loaded schema of a document's type.
func (f *MetadataFactory) MetadataOf(doc any) (*SchemaCore, bool) {
	return f.MetadataFor(reflect.TypeOf(doc))
}

// LoadedMetadata returns every successfully loaded schema ordered by class name.
func (f *MetadataFactory) LoadedMetadata() []*SchemaCore {
	f.mutex.Lock()
	entryList := make([]*metadataEntry, 0, len(f.entries))
	for _, e := range f.entries {
		entryList = append(entryList, e)
	}
	f.mutex.Unlock()

	out := []*SchemaCore{}
	for _, e := range entryList {
		select {
		case <-e.done:
			if e.err == nil {
				out = append(out, e.core)
			}
		default:
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SchemaFor returns the schema of T, loading it on first use.
//
// Options only apply on the call that loads the class. Concurrent callers for
// the same class wait for the first load. If a loadClassMetadata listener
// fails, the error is returned and the next call retries the load.
//
// Calling SchemaFor for the class being loaded from one of its own
// loadClassMetadata listeners deadlocks.
func SchemaFor[T any](ctx context.Context, f *MetadataFactory, options ...SchemaOption[T]) (*SchemaMeta[T], error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("core: SchemaFor: %s is not a struct", t)
	}

	for {
		f.mutex.Lock()
		entry, ok := f.entries[t]
		if !ok {
			entry = &metadataEntry{done: make(chan struct{})}
			f.entries[t] = entry
			mapping, hasMapping := f.mappings[t.Name()]
			f.mutex.Unlock()

			if hasMapping {
				options = append(options, FromMapping[T](mapping))
			}
			return loadSchema(ctx, f, t, entry, options)
		}
		f.mutex.Unlock()

		select {
		case <-entry.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if entry.err != nil {
			// the loader failed and removed the entry; try again
			continue
		}
		return entry.schema.(*SchemaMeta[T]), nil
	}
}

// loadSchema builds the schema of T and runs the loadClassMetadata listeners
// for entry. On failure or panic the entry is dropped so the next call retries.
func loadSchema[T any](ctx context.Context, f *MetadataFactory, t reflect.Type, entry *metadataEntry, options []SchemaOption[T]) (schema *SchemaMeta[T], err error) {
	loaded := false
	defer func() {
		r := recover()
		if !loaded {
			if r != nil {
				entry.err = fmt.Errorf("core: loading %s panicked: %v", t, r)
			}
			f.mutex.Lock()
			delete(f.entries, t)
			f.mutex.Unlock()
		}
		close(entry.done)
		if r != nil {
			panic(r)
		}
	}()

	schema = Schema[T](options...)
	if err = f.events.Dispatch(ctx, &LoadClassMetadataEventArgs{Schema: schema.Core(), Factory: f}); err != nil {
		entry.err = err
		return nil, err
	}
	schema.refreshSpecialFields()
	entry.schema, entry.core = schema, schema.Core()
	loaded = true
	logger.Debug().Str("class", schema.Name).Str("collection", schema.Collection).Msg("class metadata loaded")
	return schema, nil
}

// Register loads the schema of T on f and returns the factory's copy. It is a
// convenience for wiring at startup, and panics on failure.
func Register[T any](f *MetadataFactory, options ...SchemaOption[T]) *SchemaMeta[T] {
	schema, err := SchemaFor[T](context.Background(), f, options...)
	if err != nil {
		panic(err)
	}
	return schema
}
