// Package core provides the fundamental building blocks of the oxm document mapper.
// This file defines lifecycle callbacks: functions attached to a schema that run
// for each document of that schema when a document-scoped event fires, before the
// event's listeners.
package core

import (
	"fmt"

	"github.com/leandroluk/oxm/events"
)

// callback is a lifecycle callback with its document type erased.
type callback func(doc any) error

// RegisterCallback attaches fn to the schema for a document-scoped event
// (lifecycle or marshalling category).
//
// Callbacks run in registration order before the listeners of the event
// manager. A callback error on a pre event aborts the operation.
//
// It panics if name is not a document-scoped event.
//
// Example:
//
//	userSchema.RegisterCallback(events.PrePersist, func(u *User) error {
//	    u.Email = strings.ToLower(u.Email)
//	    return nil
//	})
func (s *SchemaMeta[T]) RegisterCallback(name events.Name, fn func(*T) error) {
	if !name.DocumentScoped() {
		panic(fmt.Sprintf("core: RegisterCallback: %q is not a document event", name))
	}
	s.callbackList[name] = append(s.callbackList[name], func(doc any) error {
		typed, ok := doc.(*T)
		if !ok {
			return fmt.Errorf("core: %s callback on %s: unexpected document %T", name, s.Name, doc)
		}
		return fn(typed)
	})
}

// HasCallbacks reports whether at least one callback is registered for name.
func (s *SchemaCore) HasCallbacks(name events.Name) bool {
	return len(s.callbackList[name]) > 0
}

// InvokeCallbacks runs the callbacks registered for name against doc and stops
// at the first error.
func (s *SchemaCore) InvokeCallbacks(name events.Name, doc any) error {
	if s == nil || doc == nil {
		return nil
	}
	for _, fn := range s.callbackList[name] {
		if err := fn(doc); err != nil {
			return fmt.Errorf("%s callback on %s: %w", name, s.Name, err)
		}
	}
	return nil
}
