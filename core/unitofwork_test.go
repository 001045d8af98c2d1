package core_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/leandroluk/oxm/core"
	"github.com/leandroluk/oxm/events"
)

func TestFlushWritesInsertsUpdatesAndRemovals(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dm := e.manager()
	tr := &trail{}
	tr.listen(t, e.events, events.OnFlush, events.PostPersist, events.PreUpdate, events.PostUpdate, events.PostRemove)

	a, b := &user{Email: "a@x", Age: 30}, &user{Email: "b@x"}
	for _, u := range []*user{a, b} {
		if err := dm.Persist(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	if got := dm.UnitOfWork().ScheduledInserts(); len(got) != 2 {
		t.Fatalf("scheduled inserts %v", got)
	}
	if a.ID != "" {
		t.Fatal("identifier assigned before flush")
	}
	if err := dm.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if a.ID == "" || b.ID == "" {
		t.Fatal("identifiers not generated")
	}
	if len(e.driver.Rows(e.schema.Core())) != 2 || !dm.Contains(a) {
		t.Fatal("documents not inserted or not managed")
	}
	if !reflect.DeepEqual(tr.names, []string{"onFlush", "postPersist", "postPersist"}) {
		t.Fatalf("insert flush %v", tr.names)
	}

	tr.names = nil
	var oldAge, newAge any
	addListener(t, e.events, events.PreUpdate, func(_ context.Context, args core.EventArgs) error {
		p := args.(*core.PreUpdateEventArgs)
		oldAge, newAge = p.OldValue("age"), p.NewValue("age")
		return nil
	})
	a.Age = 31
	dm.UnitOfWork().ComputeChangeSets()
	if cs := dm.UnitOfWork().ChangeSetFor(a); !reflect.DeepEqual(cs.Columns(), []string{"age"}) {
		t.Fatalf("change-set %v", cs)
	}
	if err := dm.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if oldAge != 30 || newAge != 31 {
		t.Fatalf("preUpdate saw %v -> %v", oldAge, newAge)
	}
	if !reflect.DeepEqual(tr.names, []string{"onFlush", "preUpdate", "postUpdate"}) {
		t.Fatalf("update flush %v", tr.names)
	}

	tr.names = nil
	if err := dm.Remove(ctx, b); err != nil {
		t.Fatal(err)
	}
	if dm.Contains(b) {
		t.Fatal("removed document still contained")
	}
	if err := dm.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tr.names, []string{"onFlush", "postRemove"}) {
		t.Fatalf("removal flush %v", tr.names)
	}
	if b.DeletedAt == nil {
		t.Fatal("removal did not soft-delete")
	}
	if n := dm.UnitOfWork().Size(); n != 1 {
		t.Fatalf("tracked %d documents", n)
	}
}

func TestFlushWithoutChangesRaisesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dm := e.manager()
	u := &user{Email: "a@x"}
	_ = dm.Persist(ctx, u)
	_ = dm.Flush(ctx)

	obs := &recordingObserver{}
	e.events.Observe(obs)
	if err := dm.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if len(obs.records) != 0 {
		t.Fatalf("dispatched %v", obs.records)
	}
}

func TestOnFlushListenersCanScheduleMore(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dm := e.manager()
	audit := &user{Email: "audit@x"}
	addListener(t, e.events, events.OnFlush, func(ctx context.Context, args core.EventArgs) error {
		uow := args.(*core.OnFlushEventArgs).UnitOfWork
		if uow.Contains(audit) {
			return nil
		}
		return uow.Persist(ctx, audit)
	})

	_ = dm.Persist(ctx, &user{Email: "a@x"})
	if err := dm.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(e.driver.Rows(e.schema.Core())); n != 2 {
		t.Fatalf("stored %d rows", n)
	}
	if audit.ID == "" {
		t.Fatal("document scheduled in onFlush not inserted")
	}
}

func TestPreUpdateEditsChangeSet(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dm := e.manager()
	u := &user{Email: "a@x"}
	_ = dm.Persist(ctx, u)
	_ = dm.Flush(ctx)

	addListener(t, e.events, events.PreUpdate, func(_ context.Context, args core.EventArgs) error {
		p := args.(*core.PreUpdateEventArgs)
		if !p.HasChangedField("updated_at") {
			return errors.New("updatedAt not touched")
		}
		p.SetNewValue("email", "normalised@x")
		if p.SetNewValue("age", 1) {
			return errors.New("unchanged column accepted")
		}
		return nil
	})
	u.Email = "A@X"
	if err := dm.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	rows := e.driver.Rows(e.schema.Core())
	if rows[0]["email"] != "normalised@x" || rows[0]["age"] != 0 {
		t.Fatalf("row %v", rows[0])
	}
}

func TestFailedFlushRollsBackAndKeepsSchedule(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dm := e.manager()
	boom := errors.New("broker down")
	fail := true
	addListener(t, e.events, events.PostPersist, func(context.Context, core.EventArgs) error {
		if fail {
			return boom
		}
		return nil
	})

	_ = dm.Persist(ctx, &user{Email: "a@x"})
	_ = dm.Persist(ctx, &user{Email: "b@x"})
	if err := dm.Flush(ctx); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if n := len(e.driver.Rows(e.schema.Core())); n != 0 {
		t.Fatalf("rollback left %d rows", n)
	}
	if n := len(dm.UnitOfWork().ScheduledInserts()); n != 2 {
		t.Fatalf("%d inserts still scheduled", n)
	}

	fail = false
	if err := dm.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(e.driver.Rows(e.schema.Core())); n != 2 {
		t.Fatalf("retry stored %d rows", n)
	}
}

func TestRemoveBeforeFlushForgetsDocument(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dm := e.manager()
	tr := &trail{}
	tr.listen(t, e.events, events.PreRemove, events.OnFlush)

	u := &user{Email: "a@x"}
	_ = dm.Persist(ctx, u)
	if err := dm.Remove(ctx, u); err != nil {
		t.Fatal(err)
	}
	if dm.UnitOfWork().Size() != 0 {
		t.Fatal("document still tracked")
	}
	_ = dm.Flush(ctx)
	if !reflect.DeepEqual(tr.names, []string{"preRemove"}) {
		t.Fatalf("events %v", tr.names)
	}
}

func TestPersistAfterRemoveCancelsRemoval(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dm := e.manager()
	u := &user{Email: "a@x"}
	_ = dm.Persist(ctx, u)
	_ = dm.Flush(ctx)

	_ = dm.Remove(ctx, u)
	if err := dm.Persist(ctx, u); err != nil {
		t.Fatal(err)
	}
	if len(dm.UnitOfWork().ScheduledRemovals()) != 0 || !dm.Contains(u) {
		t.Fatal("removal not cancelled")
	}
}

func TestUnitOfWorkErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dm := e.manager()
	if err := dm.Persist(ctx, &unmapped{ID: "1"}); !errors.Is(err, core.ErrUnmappedDocument) {
		t.Fatalf("persist unmapped: %v", err)
	}
	if err := dm.Persist(ctx, user{}); err == nil {
		t.Fatal("non-pointer document accepted")
	}
	if err := dm.Remove(ctx, &user{ID: "x"}); !errors.Is(err, core.ErrDocumentNotManaged) {
		t.Fatalf("remove unmanaged: %v", err)
	}
}

func TestDetachAndClear(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dm := e.manager()
	a, b := &user{Email: "a@x"}, &user{Email: "b@x"}
	_ = dm.Persist(ctx, a)
	_ = dm.Persist(ctx, b)

	dm.Detach(a)
	if dm.Contains(a) || !dm.Contains(b) {
		t.Fatal("detach touched the wrong document")
	}
	dm.Clear()
	if dm.UnitOfWork().Size() != 0 {
		t.Fatal("clear kept documents")
	}
	if err := dm.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(e.driver.Rows(e.schema.Core())); n != 0 {
		t.Fatalf("stored %d rows", n)
	}
}
