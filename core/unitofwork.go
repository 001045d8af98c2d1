// Package core provides the fundamental building blocks of the oxm document mapper.
// This file defines the unit of work, which tracks documents between flushes,
// computes their change-sets and writes everything in one transaction.
package core

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/leandroluk/oxm/events"
)

type documentState int

const (
	stateNew documentState = iota
	stateManaged
	stateRemoved
)

// trackedDocument is the unit of work's record of one document.
type trackedDocument struct {
	doc       any
	schema    *SchemaCore
	state     documentState
	original  map[string]any
	changeSet ChangeSet
}

type identityKey struct {
	typ reflect.Type
	id  string
}

// UnitOfWork tracks new, managed and removed documents and writes their
// changes on Flush.
//
// Documents are tracked by pointer identity. A UnitOfWork is not safe for
// concurrent use.
type UnitOfWork struct {
	dm          *DocumentManager
	tracked     []*trackedDocument
	byPointer   map[any]*trackedDocument
	identityMap map[identityKey]*trackedDocument
}

func newUnitOfWork(dm *DocumentManager) *UnitOfWork {
	return &UnitOfWork{
		dm:          dm,
		byPointer:   make(map[any]*trackedDocument),
		identityMap: make(map[identityKey]*trackedDocument),
	}
}

func (u *UnitOfWork) schemaOf(doc any) (*SchemaCore, error) {
	rv := reflect.ValueOf(doc)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("core: document must be a non-nil pointer to a struct, got %T", doc)
	}
	schema, ok := u.dm.metadata.MetadataOf(doc)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnmappedDocument, doc)
	}
	return schema, nil
}

func identityOf(schema *SchemaCore, doc any) (identityKey, bool) {
	id, err := Identifier(schema, doc)
	if err != nil {
		return identityKey{}, false
	}
	return identityKey{typ: schema.Type, id: fmt.Sprint(id)}, true
}

// Persist schedules a new document for insertion, raising prePersist.
//
// Persisting a managed document is a no-op; persisting a document scheduled
// for removal cancels the removal.
func (u *UnitOfWork) Persist(ctx context.Context, doc any) error {
	schema, err := u.schemaOf(doc)
	if err != nil {
		return err
	}
	if t, ok := u.byPointer[doc]; ok {
		if t.state == stateRemoved {
			t.state = stateManaged
		}
		return nil
	}

	touchTimestamps(schema, doc, time.Now(), true)
	if err := raise(ctx, u.dm.events, schema, &LifecycleEventArgs{Name: events.PrePersist, Schema: schema, Document: doc}); err != nil {
		return err
	}
	t := &trackedDocument{doc: doc, schema: schema, state: stateNew}
	u.tracked = append(u.tracked, t)
	u.byPointer[doc] = t
	return nil
}

// Remove schedules a document for deletion, raising preRemove.
//
// A document that was persisted but never flushed is simply forgotten.
func (u *UnitOfWork) Remove(ctx context.Context, doc any) error {
	t, ok := u.byPointer[doc]
	if !ok {
		return fmt.Errorf("%w: %T", ErrDocumentNotManaged, doc)
	}
	if t.state == stateRemoved {
		return nil
	}
	if err := raise(ctx, u.dm.events, t.schema, &LifecycleEventArgs{Name: events.PreRemove, Schema: t.schema, Document: doc}); err != nil {
		return err
	}
	if t.state == stateNew {
		u.untrack(t)
		return nil
	}
	t.state = stateRemoved
	return nil
}

// manage starts tracking a document loaded from the database.
func (u *UnitOfWork) manage(schema *SchemaCore, doc any) {
	t, ok := u.byPointer[doc]
	if !ok {
		t = &trackedDocument{doc: doc, schema: schema}
		u.tracked = append(u.tracked, t)
		u.byPointer[doc] = t
	}
	t.state = stateManaged
	t.original = Snapshot(schema, doc)
	t.changeSet = nil
	if key, ok := identityOf(schema, doc); ok {
		u.identityMap[key] = t
	}
}

// lookup returns the managed document with the given identifier.
func (u *UnitOfWork) lookup(schema *SchemaCore, id any) (any, bool) {
	t, ok := u.identityMap[identityKey{typ: schema.Type, id: fmt.Sprint(id)}]
	if !ok || t.state == stateRemoved {
		return nil, false
	}
	return t.doc, true
}

func (u *UnitOfWork) untrack(t *trackedDocument) {
	delete(u.byPointer, t.doc)
	if key, ok := identityOf(t.schema, t.doc); ok && u.identityMap[key] == t {
		delete(u.identityMap, key)
	}
	for i, other := range u.tracked {
		if other == t {
			u.tracked = append(u.tracked[:i], u.tracked[i+1:]...)
			break
		}
	}
}

// Detach stops tracking doc. Pending changes of doc are discarded.
func (u *UnitOfWork) Detach(doc any) {
	if t, ok := u.byPointer[doc]; ok {
		u.untrack(t)
	}
}

// Contains reports whether doc is scheduled for insertion or managed.
func (u *UnitOfWork) Contains(doc any) bool {
	t, ok := u.byPointer[doc]
	return ok && t.state != stateRemoved
}

// Size returns the number of tracked documents.
func (u *UnitOfWork) Size() int { return len(u.tracked) }

// Clear detaches every document.
func (u *UnitOfWork) Clear() {
	u.tracked = nil
	u.byPointer = make(map[any]*trackedDocument)
	u.identityMap = make(map[identityKey]*trackedDocument)
}

// ComputeChangeSets compares every managed document with its snapshot.
func (u *UnitOfWork) ComputeChangeSets() {
	for _, t := range u.tracked {
		if t.state != stateManaged {
			continue
		}
		changeSet := computeChangeSet(t.schema, t.original, t.doc)
		if len(changeSet) == 0 {
			changeSet = nil
		}
		t.changeSet = changeSet
	}
}

// ChangeSetFor returns the change-set computed for doc by the last
// ComputeChangeSets, or nil.
func (u *UnitOfWork) ChangeSetFor(doc any) ChangeSet {
	if t, ok := u.byPointer[doc]; ok {
		return t.changeSet
	}
	return nil
}

func (u *UnitOfWork) scheduled(match func(*trackedDocument) bool) []*trackedDocument {
	var out []*trackedDocument
	for _, t := range u.tracked {
		if match(t) {
			out = append(out, t)
		}
	}
	return out
}

func isInsert(t *trackedDocument) bool  { return t.state == stateNew }
func isUpdate(t *trackedDocument) bool  { return t.state == stateManaged && len(t.changeSet) > 0 }
func isRemoval(t *trackedDocument) bool { return t.state == stateRemoved }

func documents(list []*trackedDocument) []any {
	out := make([]any, len(list))
	for i, t := range list {
		out[i] = t.doc
	}
	return out
}

// ScheduledInserts returns the documents that the next flush inserts.
func (u *UnitOfWork) ScheduledInserts() []any { return documents(u.scheduled(isInsert)) }

// ScheduledUpdates returns the documents with a non-empty change-set.
func (u *UnitOfWork) ScheduledUpdates() []any { return documents(u.scheduled(isUpdate)) }

// ScheduledRemovals returns the documents that the next flush deletes.
func (u *UnitOfWork) ScheduledRemovals() []any { return documents(u.scheduled(isRemoval)) }

func (u *UnitOfWork) hasWork() bool {
	for _, t := range u.tracked {
		if isInsert(t) || isUpdate(t) || isRemoval(t) {
			return true
		}
	}
	return false
}

// Flush writes every pending change in a single transaction.
//
// Change-sets are computed first. When there is nothing to insert, update or
// remove, Flush returns without raising any event. Otherwise onFlush is
// raised; its listeners may persist or remove further documents, after which
// change-sets are recomputed. Then inserts (postPersist), updates (preUpdate,
// postUpdate) and removals (postRemove) are executed in that order. Post events
// fire inside the transaction, after their database operation.
//
// If any step fails the transaction is rolled back and the pending changes are
// kept, so Flush can be retried.
func (u *UnitOfWork) Flush(ctx context.Context) error {
	return dispatchOperation(ctx, OperationFlush, u, func() error {
		u.ComputeChangeSets()
		if !u.hasWork() {
			return nil
		}
		if err := u.dm.events.Dispatch(ctx, &OnFlushEventArgs{UnitOfWork: u}); err != nil {
			return err
		}
		u.ComputeChangeSets()

		insertList := u.scheduled(isInsert)
		updateList := u.scheduled(isUpdate)
		removalList := u.scheduled(isRemoval)

		err := RunTransaction(ctx, u.dm.driver, func(txCtx context.Context) error {
			for _, t := range insertList {
				if err := u.executeInsert(txCtx, t); err != nil {
					return err
				}
			}
			for _, t := range updateList {
				if err := u.executeUpdate(txCtx, t); err != nil {
					return err
				}
			}
			for _, t := range removalList {
				if err := u.executeRemoval(txCtx, t); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, t := range insertList {
			u.manage(t.schema, t.doc)
		}
		for _, t := range updateList {
			u.manage(t.schema, t.doc)
			u.dm.evict(ctx, t.schema, t.doc)
		}
		for _, t := range removalList {
			u.dm.evict(ctx, t.schema, t.doc)
			u.untrack(t)
		}
		logger.Debug().
			Int("inserts", len(insertList)).
			Int("updates", len(updateList)).
			Int("removals", len(removalList)).
			Msg("unit of work flushed")
		return nil
	})
}

func (u *UnitOfWork) executeInsert(ctx context.Context, t *trackedDocument) error {
	generateIdentifier(t.schema, t.doc)
	if err := u.dm.driver.Insert(ctx, t.schema, t.doc); err != nil {
		return fmt.Errorf("insert %s: %w", t.schema.Name, err)
	}
	return raise(ctx, u.dm.events, t.schema, &LifecycleEventArgs{Name: events.PostPersist, Schema: t.schema, Document: t.doc})
}

func (u *UnitOfWork) executeUpdate(ctx context.Context, t *trackedDocument) error {
	condition, err := identifierCondition(t.schema, t.doc)
	if err != nil {
		return err
	}
	touchTimestamps(t.schema, t.doc, time.Now(), false)
	changeSet := computeChangeSet(t.schema, t.original, t.doc)

	args := &PreUpdateEventArgs{
		LifecycleEventArgs: LifecycleEventArgs{Name: events.PreUpdate, Schema: t.schema, Document: t.doc, Condition: condition},
		ChangeSet:          changeSet,
	}
	if err := raise(ctx, u.dm.events, t.schema, args); err != nil {
		return err
	}
	t.changeSet = args.ChangeSet
	if len(args.ChangeSet) == 0 {
		return nil
	}
	if err := u.dm.driver.Update(ctx, t.schema, condition, args.ChangeSet.Changes()); err != nil {
		return fmt.Errorf("update %s: %w", t.schema.Name, err)
	}
	return raise(ctx, u.dm.events, t.schema, &LifecycleEventArgs{Name: events.PostUpdate, Schema: t.schema, Document: t.doc, Condition: condition})
}

func (u *UnitOfWork) executeRemoval(ctx context.Context, t *trackedDocument) error {
	condition, err := identifierCondition(t.schema, t.doc)
	if err != nil {
		return err
	}
	if err := removeDocument(ctx, u.dm.driver, t.schema, t.doc, condition); err != nil {
		return fmt.Errorf("delete %s: %w", t.schema.Name, err)
	}
	return raise(ctx, u.dm.events, t.schema, &LifecycleEventArgs{Name: events.PostRemove, Schema: t.schema, Document: t.doc, Condition: condition})
}
