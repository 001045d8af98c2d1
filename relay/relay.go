// Package relay forwards post-lifecycle events to a message broker.
//
// A Relay subscribes to postPersist, postUpdate and postRemove, wraps the
// document in an Envelope and hands it to a Publisher. Events raised inside a
// transaction are published after it commits.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leandroluk/oxm/core"
	"github.com/leandroluk/oxm/events"
	"github.com/rs/zerolog"
)

// Envelope is the message published for each event.
type Envelope struct {
	ID         string          `json:"id"`
	Event      events.Name     `json:"event"`
	Class      string          `json:"class"`
	Collection string          `json:"collection"`
	DocumentID string          `json:"documentId,omitempty"`
	Bulk       bool            `json:"bulk,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
	Document   json.RawMessage `json:"document,omitempty"`
}

// Relay is a core.Subscriber publishing document events.
type Relay struct {
	publisher Publisher
	logger    zerolog.Logger
	strict    bool
	now       func() time.Time
}

var _ core.Subscriber = (*Relay)(nil)

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the logger used to report publish failures.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// Strict makes relay failures fail the event. Encoding failures then abort the
// operation, and so does a failed publish outside a transaction. Publishes
// deferred to a commit cannot undo it and are always logged. By default every
// failure is logged and dropped.
func Strict() Option {
	return func(r *Relay) { r.strict = true }
}

// New creates a relay publishing through p.
func New(p Publisher, options ...Option) *Relay {
	r := &Relay{publisher: p, logger: zerolog.Nop(), now: time.Now}
	for _, option := range options {
		option(r)
	}
	return r
}

// SubscribedEvents implements core.Subscriber.
func (r *Relay) SubscribedEvents() []events.Name {
	return []events.Name{events.PostPersist, events.PostUpdate, events.PostRemove}
}

// HandleEvent implements core.Subscriber.
//
// The envelope is built when the event fires. Inside a transaction, such as a
// flush, it is published once the transaction commits and dropped if it rolls
// back.
func (r *Relay) HandleEvent(ctx context.Context, args core.EventArgs) error {
	lifecycle, ok := lifecycleArgs(args)
	if !ok || lifecycle.Schema == nil {
		return nil
	}
	log := r.logger.With().Str("event", string(args.Event())).Str("class", lifecycle.Schema.Name).Logger()

	envelope, err := r.envelope(lifecycle)
	var payload []byte
	if err == nil {
		payload, err = json.Marshal(envelope)
	}
	if err != nil {
		return r.fail(log, args.Event(), err)
	}
	key := envelope.DocumentID
	if key == "" {
		key = envelope.Collection
	}
	publish := func(ctx context.Context) error {
		return r.publisher.Publish(ctx, string(envelope.Event), payload, key)
	}

	deferred := core.AfterCommit(ctx, func(ctx context.Context) error {
		if err := publish(ctx); err != nil {
			log.Warn().Err(err).Msg("relay publish failed")
		}
		return nil
	})
	if deferred {
		return nil
	}
	if err := publish(ctx); err != nil {
		return r.fail(log, args.Event(), err)
	}
	return nil
}

func (r *Relay) fail(log zerolog.Logger, name events.Name, err error) error {
	if r.strict {
		return fmt.Errorf("relay %s: %w", name, err)
	}
	log.Warn().Err(err).Msg("relay publish failed")
	return nil
}

func lifecycleArgs(args core.EventArgs) (*core.LifecycleEventArgs, bool) {
	switch a := args.(type) {
	case *core.LifecycleEventArgs:
		return a, true
	case *core.PreUpdateEventArgs:
		return &a.LifecycleEventArgs, true
	}
	return nil, false
}

func (r *Relay) envelope(args *core.LifecycleEventArgs) (*Envelope, error) {
	envelope := &Envelope{
		ID:         uuid.NewString(),
		Event:      args.Name,
		Class:      args.Schema.Name,
		Collection: args.Schema.Collection,
		OccurredAt: r.now().UTC(),
	}
	if args.Document == nil {
		envelope.Bulk = true
		return envelope, nil
	}
	if id, err := core.Identifier(args.Schema, args.Document); err == nil {
		envelope.DocumentID = fmt.Sprint(id)
	}
	data, err := json.Marshal(core.Snapshot(args.Schema, args.Document))
	if err != nil {
		return nil, err
	}
	envelope.Document = data
	return envelope, nil
}
