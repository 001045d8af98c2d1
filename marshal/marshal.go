// Package marshal converts documents to and from XML, raising the marshalling
// events around each conversion.
//
// Schema callbacks registered for preMarshal, postMarshal, preUnmarshal and
// postUnmarshal run before the event listeners, as they do for lifecycle
// events.
package marshal

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/leandroluk/oxm/core"
	"github.com/leandroluk/oxm/events"
)

// EventArgs is the payload of the marshalling events.
//
// For preUnmarshal, Data holds the raw input and listeners may replace it. For
// postMarshal, Data holds the produced output and listeners may replace it.
// Streaming operations leave Data nil.
type EventArgs struct {
	Name     events.Name
	Document any
	Data     []byte
}

// Event implements core.EventArgs.
func (a *EventArgs) Event() events.Name { return a.Name }

// EventDocument returns the document being converted.
func (a *EventArgs) EventDocument() any { return a.Document }

// Marshaller converts documents to XML.
type Marshaller struct {
	events   *core.EventManager
	metadata *core.MetadataFactory
	prefix   string
	indent   string
}

// Option configures a Marshaller.
type Option func(*Marshaller)

// WithMetadata makes the marshaller run the schema callbacks of documents
// loaded by f.
func WithMetadata(f *core.MetadataFactory) Option {
	return func(m *Marshaller) { m.metadata = f }
}

// WithIndent indents the output like xml.MarshalIndent.
func WithIndent(prefix, indent string) Option {
	return func(m *Marshaller) { m.prefix, m.indent = prefix, indent }
}

// NewMarshaller creates a marshaller raising events on em. A nil em selects
// the default event manager.
func NewMarshaller(em *core.EventManager, options ...Option) *Marshaller {
	if em == nil {
		em = core.DefaultEventManager()
	}
	m := &Marshaller{events: em}
	for _, option := range options {
		option(m)
	}
	return m
}

func (m *Marshaller) raise(ctx context.Context, args *EventArgs) error {
	if m.metadata != nil {
		if schema, ok := m.metadata.MetadataOf(args.Document); ok {
			if err := schema.InvokeCallbacks(args.Name, args.Document); err != nil {
				return err
			}
		}
	}
	return m.events.Dispatch(ctx, args)
}

func (m *Marshaller) encoder(w io.Writer) *xml.Encoder {
	enc := xml.NewEncoder(w)
	if m.prefix != "" || m.indent != "" {
		enc.Indent(m.prefix, m.indent)
	}
	return enc
}

// Marshal returns the XML form of doc.
func (m *Marshaller) Marshal(ctx context.Context, doc any) ([]byte, error) {
	if err := m.raise(ctx, &EventArgs{Name: events.PreMarshal, Document: doc}); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := m.encoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("marshal %T: %w", doc, err)
	}
	post := &EventArgs{Name: events.PostMarshal, Document: doc, Data: buf.Bytes()}
	if err := m.raise(ctx, post); err != nil {
		return nil, err
	}
	return post.Data, nil
}

// Unmarshal decodes data into doc, which must be a pointer.
func (m *Marshaller) Unmarshal(ctx context.Context, data []byte, doc any) error {
	pre := &EventArgs{Name: events.PreUnmarshal, Document: doc, Data: data}
	if err := m.raise(ctx, pre); err != nil {
		return err
	}
	if err := xml.Unmarshal(pre.Data, doc); err != nil {
		return fmt.Errorf("unmarshal %T: %w", doc, err)
	}
	return m.raise(ctx, &EventArgs{Name: events.PostUnmarshal, Document: doc})
}

// Encode writes the XML form of doc to w.
func (m *Marshaller) Encode(ctx context.Context, w io.Writer, doc any) error {
	if err := m.raise(ctx, &EventArgs{Name: events.PreMarshal, Document: doc}); err != nil {
		return err
	}
	if err := m.encoder(w).Encode(doc); err != nil {
		return fmt.Errorf("encode %T: %w", doc, err)
	}
	return m.raise(ctx, &EventArgs{Name: events.PostMarshal, Document: doc})
}

// Decode reads one XML element from r into doc.
func (m *Marshaller) Decode(ctx context.Context, r io.Reader, doc any) error {
	if err := m.raise(ctx, &EventArgs{Name: events.PreUnmarshal, Document: doc}); err != nil {
		return err
	}
	if err := xml.NewDecoder(r).Decode(doc); err != nil {
		return fmt.Errorf("decode %T: %w", doc, err)
	}
	return m.raise(ctx, &EventArgs{Name: events.PostUnmarshal, Document: doc})
}
