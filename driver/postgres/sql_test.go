package postgres

import (
	"reflect"
	"testing"

	"github.com/leandroluk/oxm/core"
)

type account struct {
	ID    string `db:"id"`
	Email string `db:"email"`
	Age   int    `db:"age"`
}

func accountSchema() *core.SchemaCore {
	return core.Schema[account](
		core.Table[account]("accounts"),
		core.Database[account]("app"),
		core.OverrideField(func(a *account) *string { return &a.ID }, core.PrimaryKey()),
	).Core()
}

func TestBuildCondition(t *testing.T) {
	cases := []struct {
		name string
		cond *core.Condition
		sql  string
		args []any
	}{
		{"nil", nil, "TRUE", []any{}},
		{"eq", core.Column("email").Eq("a@b"), `"email" = $1`, []any{"a@b"}},
		{
			"and",
			core.Column("age").Gte(18).And(core.Column("deleted_at").Nil()),
			`("age" >= $1 AND "deleted_at" IS NULL)`,
			[]any{18},
		},
		{"in", core.Column("id").In("a", "b"), `"id" IN ($1, $2)`, []any{"a", "b"}},
		{"empty in", core.Column("id").In(), "FALSE", []any{}},
		{"not", core.Column("email").Like("%x%").Not(), `NOT ("email" ILIKE $1)`, []any{"%x%"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			args := []any{}
			if got := buildCondition(c.cond, &args); got != c.sql {
				t.Fatalf("sql: got %q, want %q", got, c.sql)
			}
			if !reflect.DeepEqual(args, c.args) {
				t.Fatalf("args: got %v, want %v", args, c.args)
			}
		})
	}
}

func TestBuildSelect(t *testing.T) {
	schema := accountSchema()
	sql, args := buildSelect(schema, &core.Where{
		Condition: core.Column("age").Gt(30),
		Sort:      []core.Sort{{FieldName: "email", Order: -1}},
		Limit:     10,
		Offset:    20,
	}, false)
	want := `SELECT "id", "email", "age" FROM "app"."accounts" WHERE "age" > $1 ORDER BY "email" DESC LIMIT 10 OFFSET 20`
	if sql != want {
		t.Fatalf("got %q, want %q", sql, want)
	}
	if !reflect.DeepEqual(args, []any{30}) {
		t.Fatalf("args: %v", args)
	}

	single, _ := buildSelect(schema, &core.Where{Limit: 5}, true)
	if single != `SELECT "id", "email", "age" FROM "app"."accounts" WHERE TRUE LIMIT 1` {
		t.Fatalf("single: %q", single)
	}
}

func TestBuildInsertAndUpdate(t *testing.T) {
	schema := accountSchema()
	sql, args := buildInsert(schema, &account{ID: "1", Email: "a@b", Age: 3})
	if sql != `INSERT INTO "app"."accounts" ("id", "email", "age") VALUES ($1, $2, $3)` {
		t.Fatalf("insert: %q", sql)
	}
	if !reflect.DeepEqual(args, []any{"1", "a@b", 3}) {
		t.Fatalf("insert args: %v", args)
	}

	sql, args = buildUpdate(schema, core.Column("id").Eq("1"), core.Changes{"email": "c@d", "age": 4})
	if sql != `UPDATE "app"."accounts" SET "age" = $1, "email" = $2 WHERE "id" = $3` {
		t.Fatalf("update: %q", sql)
	}
	if !reflect.DeepEqual(args, []any{4, "c@d", "1"}) {
		t.Fatalf("update args: %v", args)
	}
}

func TestQuote(t *testing.T) {
	if got := quote(`we"ird`); got != `"we""ird"` {
		t.Fatalf("got %s", got)
	}
}
