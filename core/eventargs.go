package core

import "github.com/leandroluk/oxm/events"

// LifecycleEventArgs is the payload of the persist, update, remove and load
// events.
//
// Document is the affected document (a pointer to the mapped struct). It is
// nil for bulk operations driven by a Condition, in which case Condition is set.
type LifecycleEventArgs struct {
	Name      events.Name
	Schema    *SchemaCore
	Document  any
	Condition *Condition
}

// Event implements EventArgs.
func (a *LifecycleEventArgs) Event() events.Name { return a.Name }

// PreUpdateEventArgs is the payload of preUpdate. Listeners may inspect and
// modify the change-set; modifications are written to the database.
type PreUpdateEventArgs struct {
	LifecycleEventArgs
	ChangeSet ChangeSet
}

// HasChangedField reports whether column is part of the change-set.
func (a *PreUpdateEventArgs) HasChangedField(column string) bool {
	_, ok := a.ChangeSet[column]
	return ok
}

// OldValue returns the value of column before the update.
func (a *PreUpdateEventArgs) OldValue(column string) any {
	return a.ChangeSet[column].Old
}

// NewValue returns the value column will be updated to.
func (a *PreUpdateEventArgs) NewValue(column string) any {
	return a.ChangeSet[column].New
}

// SetNewValue replaces the value column will be updated to. Only columns that
// are already part of the change-set can be changed.
func (a *PreUpdateEventArgs) SetNewValue(column string, value any) bool {
	change, ok := a.ChangeSet[column]
	if !ok {
		return false
	}
	change.New = value
	a.ChangeSet[column] = change
	return true
}

// LoadClassMetadataEventArgs is the payload of loadClassMetadata. Listeners
// may adjust Schema (for instance the collection name) before it is used.
type LoadClassMetadataEventArgs struct {
	Schema  *SchemaCore
	Factory *MetadataFactory
}

// Event implements EventArgs.
func (a *LoadClassMetadataEventArgs) Event() events.Name { return events.LoadClassMetadata }

// OnFlushEventArgs is the payload of onFlush.
type OnFlushEventArgs struct {
	UnitOfWork *UnitOfWork
}

// Event implements EventArgs.
func (a *OnFlushEventArgs) Event() events.Name { return events.OnFlush }

// documentCarrier is implemented by payloads that carry a single document.
type documentCarrier interface {
	document() any
}

func (a *LifecycleEventArgs) document() any { return a.Document }

// DocumentAs extracts the document of a payload as *T.
//
// Example:
//
//	core.On(events.PostLoad, func(ctx context.Context, args core.EventArgs) error {
//	    if user, ok := core.DocumentAs[User](args); ok {
//	        user.Loaded = true
//	    }
//	    return nil
//	})
func DocumentAs[T any](args EventArgs) (*T, bool) {
	doc, ok := DocumentOf(args).(*T)
	return doc, ok && doc != nil
}

// DocumentOf returns the document of args, or nil when the payload carries none.
// It accepts any payload exposing an EventDocument() method, such as the marshal
// package's event arguments.
func DocumentOf(args EventArgs) any {
	switch a := args.(type) {
	case documentCarrier:
		return a.document()
	case interface{ EventDocument() any }:
		return a.EventDocument()
	}
	return nil
}
