package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/leandroluk/oxm/core"
	"github.com/leandroluk/oxm/driver/memory"
	"github.com/leandroluk/oxm/events"
	"github.com/rs/zerolog"
)

type order struct {
	ID     string `db:"id"`
	Amount int    `db:"amount"`
}

type message struct {
	eventType string
	key       string
	envelope  Envelope
}

type fakePublisher struct {
	sent []message
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, eventType string, payload []byte, key string) error {
	if p.err != nil {
		return p.err
	}
	var e Envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return err
	}
	p.sent = append(p.sent, message{eventType: eventType, key: key, envelope: e})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func newManager(t *testing.T, r *Relay) (*core.DocumentManager, *memory.Driver) {
	t.Helper()
	em := core.NewEventManager()
	if err := em.AddSubscriber(r); err != nil {
		t.Fatal(err)
	}
	factory := core.NewMetadataFactory(em)
	core.Register[order](factory,
		core.Table[order]("orders"),
		core.OverrideField(func(o *order) *string { return &o.ID }, core.PrimaryKey(), core.Generated()),
	)
	driver := memory.New()
	return core.NewDocumentManager(driver, core.WithMetadataFactory(factory)), driver
}

func TestRelayPublishesDocumentEvents(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	dm, _ := newManager(t, New(pub))

	o := &order{Amount: 10}
	if err := dm.Persist(ctx, o); err != nil {
		t.Fatal(err)
	}
	if err := dm.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	o.Amount = 20
	if err := dm.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if err := dm.Remove(ctx, o); err != nil {
		t.Fatal(err)
	}
	if err := dm.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	wantEvents := []string{"postPersist", "postUpdate", "postRemove"}
	if len(pub.sent) != len(wantEvents) {
		t.Fatalf("sent %d messages, want %d", len(pub.sent), len(wantEvents))
	}
	for i, msg := range pub.sent {
		if msg.eventType != wantEvents[i] || msg.envelope.Event != events.Name(wantEvents[i]) {
			t.Errorf("message %d: event %s", i, msg.eventType)
		}
		if msg.key != o.ID || msg.envelope.DocumentID != o.ID {
			t.Errorf("message %d: key %q, document %q, want %q", i, msg.key, msg.envelope.DocumentID, o.ID)
		}
		if msg.envelope.Class != "order" || msg.envelope.Collection != "orders" || msg.envelope.ID == "" {
			t.Errorf("message %d: envelope %+v", i, msg.envelope)
		}
	}
	var doc map[string]any
	if err := json.Unmarshal(pub.sent[1].envelope.Document, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["amount"] != float64(20) {
		t.Fatalf("postUpdate document %v", doc)
	}
}

func TestRelayDropsEventsOfRolledBackFlush(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	dm, driver := newManager(t, New(pub, Strict()))
	boom := errors.New("audit down")
	calls := 0
	if err := dm.Events().AddListener(events.PostPersist, func(context.Context, core.EventArgs) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	first, second := &order{Amount: 1}, &order{Amount: 2}
	_ = dm.Persist(ctx, first)
	_ = dm.Persist(ctx, second)
	if err := dm.Flush(ctx); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	schema, _ := dm.Metadata().MetadataOf(first)
	if rows := driver.Rows(schema); len(rows) != 0 {
		t.Fatalf("insert should be rolled back, got %v", rows)
	}
	if len(pub.sent) != 0 {
		t.Fatalf("published %d envelopes for a rolled back flush", len(pub.sent))
	}

	if err := dm.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if len(pub.sent) != 2 || pub.sent[0].key != first.ID || pub.sent[1].key != second.ID {
		t.Fatalf("sent %+v", pub.sent)
	}
}

func TestRelayStrictFailsOperationsOutsideTransaction(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("broker down")
	var buf bytes.Buffer
	dm, driver := newManager(t, New(&fakePublisher{err: boom}, Strict(), WithLogger(zerolog.New(&buf))))
	schema, err := core.SchemaFor[order](ctx, dm.Metadata())
	if err != nil {
		t.Fatal(err)
	}

	m := core.NewModel(schema, driver).WithEvents(dm.Events())
	if err := m.Create(ctx, &order{Amount: 1}); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}

	// a committed flush cannot be undone, so the failure is only logged
	o := &order{Amount: 2}
	_ = dm.Persist(ctx, o)
	if err := dm.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if !dm.Contains(o) || !strings.Contains(buf.String(), "relay publish failed") {
		t.Fatalf("flush not committed or failure not logged: %s", buf.String())
	}
}

func TestRelayLenientFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	dm, driver := newManager(t, New(&fakePublisher{err: errors.New("broker down")}, WithLogger(zerolog.New(&buf))))

	o := &order{Amount: 1}
	if err := dm.Persist(ctx, o); err != nil {
		t.Fatal(err)
	}
	if err := dm.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	schema, _ := dm.Metadata().MetadataOf(o)
	if rows := driver.Rows(schema); len(rows) != 1 {
		t.Fatalf("expected committed insert, got %v", rows)
	}
	if !strings.Contains(buf.String(), "relay publish failed") {
		t.Fatalf("missing log: %s", buf.String())
	}
}

func TestLoggingPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLoggingPublisher(zerolog.New(&buf))
	if err := p.Publish(context.Background(), "postPersist", []byte(`{"id":"x"}`), "k"); err != nil {
		t.Fatal(err)
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatal(err)
	}
	if line["event"] != "postPersist" || line["key"] != "k" {
		t.Fatalf("unexpected log line %v", line)
	}
}

func TestKafkaPublisherTopic(t *testing.T) {
	if _, err := NewKafkaPublisher(nil, nil); err == nil {
		t.Fatal("expected error without brokers")
	}
	p, err := NewKafkaPublisher([]string{"localhost:9092"}, map[string]string{"postPersist": "documents.created"})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if got := p.topic("postPersist"); got != "documents.created" {
		t.Fatalf("got %s", got)
	}
	if got := p.topic("postRemove"); got != "postRemove" {
		t.Fatalf("got %s", got)
	}
}
