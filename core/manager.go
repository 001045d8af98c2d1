// Package core provides the fundamental building blocks of the oxm document mapper.
// This file defines the DocumentManager, the entry point for working with
// documents through a unit of work.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/leandroluk/oxm/events"
)

// DocumentManager coordinates a driver, an event manager, a metadata factory
// and a unit of work.
//
// Like its UnitOfWork, a DocumentManager is not safe for concurrent use. Create
// one per request or job.
type DocumentManager struct {
	driver     Driver
	events     *EventManager
	metadata   *MetadataFactory
	cache      Cache
	cacheTTL   time.Duration
	unitOfWork *UnitOfWork
}

// ManagerOption configures a DocumentManager.
type ManagerOption func(*DocumentManager)

// WithEventManager sets the event manager. It defaults to the metadata
// factory's event manager, or the default event manager.
func WithEventManager(em *EventManager) ManagerOption {
	return func(dm *DocumentManager) { dm.events = em }
}

// WithMetadataFactory sets the metadata factory. Factories are meant to be
// shared between managers.
func WithMetadataFactory(f *MetadataFactory) ManagerOption {
	return func(dm *DocumentManager) { dm.metadata = f }
}

// WithResultCache makes Find read through cache. A ttl of zero never expires.
func WithResultCache(cache Cache, ttl time.Duration) ManagerOption {
	return func(dm *DocumentManager) {
		dm.cache = cache
		dm.cacheTTL = ttl
	}
}

// NewDocumentManager creates a document manager on top of driver.
//
// Example:
//
//	factory := core.NewMetadataFactory(em)
//	dm := core.NewDocumentManager(driver, core.WithMetadataFactory(factory))
func NewDocumentManager(driver Driver, options ...ManagerOption) *DocumentManager {
	dm := &DocumentManager{driver: driver}
	for _, option := range options {
		option(dm)
	}
	switch {
	case dm.events == nil && dm.metadata != nil:
		dm.events = dm.metadata.Events()
	case dm.events == nil:
		dm.events = globalManager
	}
	if dm.metadata == nil {
		dm.metadata = NewMetadataFactory(dm.events)
	}
	dm.unitOfWork = newUnitOfWork(dm)
	return dm
}

// Driver returns the storage driver.
func (dm *DocumentManager) Driver() Driver { return dm.driver }

// ResultCache returns the cache Find reads through and its ttl. The cache is
// nil when none is configured.
func (dm *DocumentManager) ResultCache() (Cache, time.Duration) { return dm.cache, dm.cacheTTL }

// Events returns the event manager.
func (dm *DocumentManager) Events() *EventManager { return dm.events }

// Metadata returns the metadata factory.
func (dm *DocumentManager) Metadata() *MetadataFactory { return dm.metadata }

// UnitOfWork returns the unit of work.
func (dm *DocumentManager) UnitOfWork() *UnitOfWork { return dm.unitOfWork }

// Persist schedules doc for insertion on the next Flush.
func (dm *DocumentManager) Persist(ctx context.Context, doc any) error {
	return dm.unitOfWork.Persist(ctx, doc)
}

// Remove schedules doc for deletion on the next Flush.
func (dm *DocumentManager) Remove(ctx context.Context, doc any) error {
	return dm.unitOfWork.Remove(ctx, doc)
}

// Flush writes the pending changes of the unit of work.
func (dm *DocumentManager) Flush(ctx context.Context) error {
	return dm.unitOfWork.Flush(ctx)
}

// Detach stops tracking doc.
func (dm *DocumentManager) Detach(doc any) { dm.unitOfWork.Detach(doc) }

// Contains reports whether doc is scheduled for insertion or managed.
func (dm *DocumentManager) Contains(doc any) bool { return dm.unitOfWork.Contains(doc) }

// Clear detaches every document.
func (dm *DocumentManager) Clear() { dm.unitOfWork.Clear() }

// Refresh reloads doc from the database, discarding unflushed changes.
func (dm *DocumentManager) Refresh(ctx context.Context, doc any) error {
	schema, ok := dm.metadata.MetadataOf(doc)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnmappedDocument, doc)
	}
	if err := refreshDocument(ctx, dm.driver, dm.events, schema, doc); err != nil {
		return err
	}
	if dm.unitOfWork.Contains(doc) {
		dm.unitOfWork.manage(schema, doc)
	}
	return nil
}

func cacheKey(schema *SchemaCore, id any) string {
	return fmt.Sprintf("%s:%v", schema.Collection, id)
}

// evict drops the cached copy of doc. Cache failures are logged only.
func (dm *DocumentManager) evict(ctx context.Context, schema *SchemaCore, doc any) {
	if dm.cache == nil {
		return
	}
	id, err := Identifier(schema, doc)
	if err != nil {
		return
	}
	if err := dm.cache.Delete(ctx, cacheKey(schema, id)); err != nil {
		logger.Warn().Err(err).Str("collection", schema.Collection).Msg("result cache eviction failed")
	}
}

// Find returns the document of type T with the given identifier.
//
// A document already managed by dm is returned as is. Otherwise it is read from
// the result cache, when one is configured, or from the driver; in both cases
// preLoad and postLoad are raised and the document becomes managed. Missing
// documents yield ErrDocumentNotFound.
func Find[T any](ctx context.Context, dm *DocumentManager, id any) (*T, error) {
	meta, err := SchemaFor[T](ctx, dm.metadata)
	if err != nil {
		return nil, err
	}
	doc, err := dm.find(ctx, meta.Core(), id)
	if err != nil {
		return nil, err
	}
	return doc.(*T), nil
}

// FindDocument is Find for a class only known at run time, such as one named
// in a request. It returns a pointer to a value of schema.Type.
func FindDocument(ctx context.Context, dm *DocumentManager, schema *SchemaCore, id any) (any, error) {
	return dm.find(ctx, schema, id)
}

func (dm *DocumentManager) find(ctx context.Context, schema *SchemaCore, id any) (any, error) {
	if schema.IdentifierField() == nil {
		return nil, fmt.Errorf("%w: %s has no primary key", ErrNoIdentifier, schema.Name)
	}
	if doc, ok := dm.unitOfWork.lookup(schema, id); ok {
		return doc, nil
	}

	key := cacheKey(schema, id)
	if dm.cache != nil {
		data, hit, err := dm.cache.Get(ctx, key)
		if err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("result cache read failed")
		}
		if hit {
			doc, err := dm.loadCached(ctx, schema, data)
			if err == nil {
				return doc, nil
			}
			logger.Warn().Err(err).Str("key", key).Msg("result cache entry discarded")
		}
	}

	where := withSoftDelete(schema, &Where{
		Condition: Column(schema.IdentifierField().DatabaseColumnName).Eq(id),
	})
	target := reflect.New(schema.Type)
	err := dispatchOperation(ctx, OperationFind, where, func() error {
		raw, err := dm.driver.FindOne(ctx, schema, where)
		if err != nil {
			return err
		}
		row, ok := raw.(map[string]any)
		if raw == nil || !ok {
			return fmt.Errorf("%w: %s %v", ErrDocumentNotFound, schema.Name, id)
		}
		return loadDocument(ctx, dm.events, schema, row, target)
	})
	if err != nil {
		return nil, err
	}
	doc := target.Interface()
	dm.unitOfWork.manage(schema, doc)

	if dm.cache != nil {
		if data, err := json.Marshal(doc); err == nil {
			if err := dm.cache.Set(ctx, key, data, dm.cacheTTL); err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("result cache write failed")
			}
		}
	}
	return doc, nil
}

// loadCached decodes a cached document, raising preLoad and postLoad.
func (dm *DocumentManager) loadCached(ctx context.Context, schema *SchemaCore, data []byte) (any, error) {
	target := reflect.New(schema.Type)
	doc := target.Interface()
	if err := raise(ctx, dm.events, schema, &LifecycleEventArgs{Name: events.PreLoad, Schema: schema, Document: doc}); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, err
	}
	if err := raise(ctx, dm.events, schema, &LifecycleEventArgs{Name: events.PostLoad, Schema: schema, Document: doc}); err != nil {
		return nil, err
	}
	dm.unitOfWork.manage(schema, doc)
	return doc, nil
}

// FindAll returns every document of type T matching where. The documents
// become managed; documents already managed are returned instead of the
// loaded copies.
func FindAll[T any](ctx context.Context, dm *DocumentManager, where *Where) ([]*T, error) {
	meta, err := SchemaFor[T](ctx, dm.metadata)
	if err != nil {
		return nil, err
	}
	schema := meta.Core()
	effective := withSoftDelete(schema, where)

	var results []*T
	err = dispatchOperation(ctx, OperationFind, effective, func() error {
		raw, err := dm.driver.FindMany(ctx, schema, effective)
		if err != nil {
			return err
		}
		rows, _ := raw.([]map[string]any)
		for _, row := range rows {
			target := new(T)
			if err := loadDocument(ctx, dm.events, schema, row, reflect.ValueOf(target)); err != nil {
				return err
			}
			if id, err := Identifier(schema, target); err == nil {
				if existing, ok := dm.unitOfWork.lookup(schema, id); ok {
					results = append(results, existing.(*T))
					continue
				}
			}
			dm.unitOfWork.manage(schema, target)
			results = append(results, target)
		}
		return nil
	})
	return results, err
}
