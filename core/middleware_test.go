package core_test

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/leandroluk/oxm/core"
	"github.com/leandroluk/oxm/events"
	"github.com/rs/zerolog"
)

func TestMiddlewaresWrapOperations(t *testing.T) {
	core.ResetMiddlewares()
	t.Cleanup(core.ResetMiddlewares)

	var got []string
	record := func(label string) core.Middleware {
		return func(next core.Handler) core.Handler {
			return func(ctx context.Context, op core.Operation, payload any) error {
				got = append(got, label+":"+string(op))
				return next(ctx, op, payload)
			}
		}
	}
	core.Use(record("outer"))
	core.Use(record("inner"))

	e := newEnv(t)
	ctx := context.Background()
	dm := e.manager()
	_ = dm.Persist(ctx, &user{Email: "a@x"})
	if err := dm.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"outer:flush", "inner:flush"}) {
		t.Fatalf("got %v", got)
	}

	got = nil
	if err := e.model().Create(ctx, &user{Email: "b@x"}); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"outer:insert", "inner:insert"}) {
		t.Fatalf("got %v", got)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	core.ResetMiddlewares()
	t.Cleanup(core.ResetMiddlewares)

	var buf bytes.Buffer
	core.Use(core.LoggingMiddleware(zerolog.New(&buf).Level(zerolog.DebugLevel)))

	e := newEnv(t)
	ctx := context.Background()
	m := e.model()
	if err := m.Create(ctx, &user{Email: "a@x"}); err != nil {
		t.Fatal(err)
	}
	veto := errors.New("veto")
	addListener(t, e.events, events.PrePersist, func(context.Context, core.EventArgs) error { return veto })
	_ = m.Create(ctx, &user{Email: "b@x"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines %q", lines)
	}
	if !strings.Contains(lines[0], `"level":"debug"`) || !strings.Contains(lines[0], `"op":"insert"`) {
		t.Fatalf("success line %s", lines[0])
	}
	if !strings.Contains(lines[1], `"level":"warn"`) || !strings.Contains(lines[1], "veto") {
		t.Fatalf("failure line %s", lines[1])
	}
}

func TestChangeSetHelpers(t *testing.T) {
	cs := core.ChangeSet{
		"email": {Old: "a", New: "b"},
		"age":   {Old: 1, New: 2},
	}
	if !reflect.DeepEqual(cs.Columns(), []string{"age", "email"}) {
		t.Fatalf("columns %v", cs.Columns())
	}
	if !reflect.DeepEqual(cs.Changes(), core.Changes{"email": "b", "age": 2}) {
		t.Fatalf("changes %v", cs.Changes())
	}
	if !reflect.DeepEqual(core.Changes{"b": 1, "a": 2}.Columns(), []string{"a", "b"}) {
		t.Fatal("changes columns not sorted")
	}
}
