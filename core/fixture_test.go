package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/leandroluk/oxm/core"
	"github.com/leandroluk/oxm/driver/memory"
	"github.com/leandroluk/oxm/events"
)

type user struct {
	ID        string     `db:"id" json:"id"`
	Email     string     `db:"email" json:"email"`
	Age       int        `db:"age" json:"age"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

type unmapped struct{ ID string }

func userOptions() []core.SchemaOption[user] {
	return []core.SchemaOption[user]{
		core.Table[user]("users"),
		core.OverrideField(func(u *user) *string { return &u.ID }, core.PrimaryKey(), core.Generated()),
		core.OverrideField(func(u *user) *time.Time { return &u.CreatedAt }, core.CreatedAt()),
		core.OverrideField(func(u *user) *time.Time { return &u.UpdatedAt }, core.UpdatedAt()),
		core.OverrideField(func(u *user) **time.Time { return &u.DeletedAt }, core.DeletedAt()),
	}
}

type env struct {
	events  *core.EventManager
	factory *core.MetadataFactory
	schema  *core.SchemaMeta[user]
	driver  *memory.Driver
}

func newEnv(t *testing.T) *env {
	t.Helper()
	em := core.NewEventManager()
	factory := core.NewMetadataFactory(em)
	return &env{
		events:  em,
		factory: factory,
		schema:  core.Register[user](factory, userOptions()...),
		driver:  memory.New(),
	}
}

func (e *env) manager(options ...core.ManagerOption) *core.DocumentManager {
	return core.NewDocumentManager(e.driver, append([]core.ManagerOption{core.WithMetadataFactory(e.factory)}, options...)...)
}

func (e *env) model() *core.Model[user] {
	return core.NewModel(e.schema, e.driver).WithEvents(e.events)
}

// trail records event names in dispatch order.
type trail struct{ names []string }

func (tr *trail) listen(t *testing.T, em *core.EventManager, names ...events.Name) {
	t.Helper()
	for _, name := range names {
		name := name
		addListener(t, em, name, func(context.Context, core.EventArgs) error {
			tr.names = append(tr.names, string(name))
			return nil
		})
	}
}

func addListener(t *testing.T, em *core.EventManager, name events.Name, listener core.Listener) {
	t.Helper()
	if err := em.AddListener(name, listener); err != nil {
		t.Fatal(err)
	}
}
