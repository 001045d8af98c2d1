// Package core provides the fundamental building blocks of the oxm document mapper.
// This file defines the event manager, which dispatches the named events of the
// events package to registered listeners and subscribers.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/leandroluk/oxm/events"
)

// EventArgs is the payload passed to listeners. Every payload knows the event
// it was raised for.
type EventArgs interface {
	Event() events.Name
}

// Listener is the callback signature for event listeners.
//
// Returning an error from a listener of a pre event (preRemove, prePersist,
// preUpdate, preLoad, ...) aborts the operation that raised it.
type Listener func(ctx context.Context, args EventArgs) error

// Subscriber is a listener that declares the events it wants to receive.
type Subscriber interface {
	SubscribedEvents() []events.Name
	HandleEvent(ctx context.Context, args EventArgs) error
}

// Observer is notified after each dispatch. It is used for metrics and tracing
// and must not block.
type Observer interface {
	ObserveDispatch(name events.Name, listenerCount int, elapsed time.Duration, err error)
}

// EventManager manages the listeners of each event and dispatches events to
// them.
//
// Dispatch is synchronous: listeners run in registration order on the caller's
// goroutine, and the first error stops the dispatch. An EventManager is safe for
// concurrent use.
type EventManager struct {
	mutex        sync.RWMutex
	listenerList map[events.Name][]Listener
	observerList []Observer
}

// NewEventManager creates an empty EventManager.
func NewEventManager() *EventManager {
	return &EventManager{listenerList: make(map[events.Name][]Listener)}
}

// AddListener registers a listener for an event. Only names from the events
// registry are accepted.
func (m *EventManager) AddListener(name events.Name, listener Listener) error {
	if !name.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	if listener == nil {
		return fmt.Errorf("core: nil listener for %q", name)
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.listenerList[name] = append(m.listenerList[name], listener)
	return nil
}

// AddSubscriber registers a Subscriber for every event it declares. Nothing is
// registered if any declared name is unknown.
func (m *EventManager) AddSubscriber(subscriber Subscriber) error {
	nameList := subscriber.SubscribedEvents()
	for _, name := range nameList {
		if !name.Known() {
			return fmt.Errorf("%w: %q", ErrUnknownEvent, name)
		}
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, name := range nameList {
		m.listenerList[name] = append(m.listenerList[name], subscriber.HandleEvent)
	}
	return nil
}

// Observe registers an Observer notified after every dispatch.
func (m *EventManager) Observe(observer Observer) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.observerList = append(m.observerList, observer)
}

// HasListeners reports whether at least one listener is registered for name.
func (m *EventManager) HasListeners(name events.Name) bool {
	return m.ListenerCount(name) > 0
}

// ListenerCount returns the number of listeners registered for name.
func (m *EventManager) ListenerCount(name events.Name) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.listenerList[name])
}

// Dispatch invokes the listeners registered for args.Event().
//
// The listener list is snapshotted before invocation, so listeners may
// register other listeners; those only see later dispatches.
func (m *EventManager) Dispatch(ctx context.Context, args EventArgs) error {
	name := args.Event()
	m.mutex.RLock()
	listenerList := m.listenerList[name]
	observerList := m.observerList
	m.mutex.RUnlock()

	if len(listenerList) == 0 && len(observerList) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	for _, listener := range listenerList {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = listener(ctx, args); err != nil {
			err = fmt.Errorf("%s listener: %w", name, err)
			break
		}
	}
	elapsed := time.Since(start)

	for _, observer := range observerList {
		observer.ObserveDispatch(name, len(listenerList), elapsed, err)
	}
	if err != nil {
		logger.Debug().Str("event", string(name)).Err(err).Msg("dispatch aborted")
	}
	return err
}

// globalManager is the event manager used when no other one is configured.
var globalManager = NewEventManager()

// DefaultEventManager returns the process-wide event manager used by models
// and document managers that were not given one.
func DefaultEventManager() *EventManager { return globalManager }

// On registers a listener on the default event manager.
//
// It panics if name is not part of the events registry, as registering a
// listener for a name that can never fire is a programming error.
//
// Example:
//
//	core.On(events.PostPersist, func(ctx context.Context, args core.EventArgs) error {
//	    if user, ok := core.DocumentAs[User](args); ok {
//	        log.Printf("user persisted: %s", user.ID)
//	    }
//	    return nil
//	})
func On(name events.Name, listener Listener) {
	if err := globalManager.AddListener(name, listener); err != nil {
		panic(err)
	}
}

// Emit dispatches args on the default event manager.
func Emit(ctx context.Context, args EventArgs) error {
	return globalManager.Dispatch(ctx, args)
}
