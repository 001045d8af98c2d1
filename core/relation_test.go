package core_test

import (
	"context"
	"reflect"
	"sort"
	"testing"

	"github.com/leandroluk/oxm/core"
	"github.com/leandroluk/oxm/driver/memory"
	"github.com/leandroluk/oxm/events"
)

type post struct {
	ID       string `db:"id"`
	AuthorID string `db:"author_id"`
	Title    string `db:"title"`
}

type group struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

type author struct {
	ID     string  `db:"id"`
	Name   string  `db:"name"`
	Posts  []post  `db:"-"`
	Groups []group `db:"-"`
}

type membership struct {
	AuthorID string
	GroupID  string
}

func TestRelationsLoad(t *testing.T) {
	ctx := context.Background()
	em := core.NewEventManager()
	f := core.NewMetadataFactory(em)
	posts := core.Register[post](f, core.OverrideField(func(p *post) *string { return &p.ID }, core.PrimaryKey()))
	groups := core.Register[group](f, core.OverrideField(func(g *group) *string { return &g.ID }, core.PrimaryKey()))
	authors := core.Register[author](f, core.OverrideField(func(a *author) *string { return &a.ID }, core.PrimaryKey()))

	core.AddRelation(authors, core.Relation[author, post, struct{}]{
		Kind:       core.OneToMany,
		Field:      func(a *author) *[]post { return &a.Posts },
		RefSchema:  posts,
		LocalKey:   func(a *author) *string { return &a.ID },
		ForeignKey: func(p *post) *string { return &p.AuthorID },
	})
	core.AddRelation(authors, core.Relation[author, group, membership]{
		Kind:           core.ManyToMany,
		Field:          func(a *author) *[]group { return &a.Groups },
		RefSchema:      groups,
		LocalKey:       func(a *author) *string { return &a.ID },
		ForeignKey:     func(g *group) *string { return &g.ID },
		JoinTable:      "memberships",
		JoinLocalKey:   func(m *membership) *string { return &m.AuthorID },
		JoinForeignKey: func(m *membership) *string { return &m.GroupID },
	})

	d := memory.New()
	d.Seed(authors.Core(), map[string]any{"id": "a1", "name": "Ada"})
	d.Seed(posts.Core(),
		map[string]any{"id": "p1", "author_id": "a1", "title": "Engines"},
		map[string]any{"id": "p2", "author_id": "a1", "title": "Notes"},
		map[string]any{"id": "p3", "author_id": "a2", "title": "Other"},
	)
	d.Seed(groups.Core(), map[string]any{"id": "g1", "name": "math"}, map[string]any{"id": "g2", "name": "poetry"})
	d.Seed(&core.SchemaCore{Collection: "memberships"}, map[string]any{"AuthorID": "a1", "GroupID": "g2"})

	postLoads := 0
	addListener(t, em, events.PostLoad, func(_ context.Context, args core.EventArgs) error {
		if _, ok := core.DocumentAs[post](args); ok {
			postLoads++
		}
		return nil
	})
	loadedPosts, loadedGroups := -1, -1
	addListener(t, em, events.PostLoad, func(_ context.Context, args core.EventArgs) error {
		if a, ok := core.DocumentAs[author](args); ok {
			loadedPosts, loadedGroups = len(a.Posts), len(a.Groups)
		}
		return nil
	})

	m := core.NewModel(authors, d).WithEvents(em)
	got, err := m.FindOne(core.NewQuery(authors)).
		Include(func(a *author) any { return &a.Posts }).
		Include(func(a *author) any { return &a.Groups }).
		Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Name != "Ada" {
		t.Fatalf("author %+v", got)
	}
	titles := []string{}
	for _, p := range got.Posts {
		titles = append(titles, p.Title)
	}
	sort.Strings(titles)
	if !reflect.DeepEqual(titles, []string{"Engines", "Notes"}) {
		t.Fatalf("posts %v", titles)
	}
	if len(got.Groups) != 1 || got.Groups[0].Name != "poetry" {
		t.Fatalf("groups %v", got.Groups)
	}
	if loadedPosts != 0 || loadedGroups != 0 {
		t.Fatalf("postLoad saw %d posts and %d groups", loadedPosts, loadedGroups)
	}
	if postLoads != 2 {
		t.Fatalf("related documents raised postLoad %d times", postLoads)
	}

	bare := &author{ID: "a1"}
	if err := m.LoadRelation(ctx, bare, &bare.Posts); err != nil {
		t.Fatal(err)
	}
	if len(bare.Posts) != 2 {
		t.Fatalf("LoadRelation loaded %d posts", len(bare.Posts))
	}
}
