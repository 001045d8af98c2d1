package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leandroluk/oxm/core"
	"github.com/leandroluk/oxm/driver/memory"
	"github.com/leandroluk/oxm/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type widget struct {
	ID   string `db:"_id"`
	Name string `db:"name"`
}

func newTestOptions(t *testing.T, checks map[string]Pinger) Options {
	t.Helper()
	em := core.NewEventManager()
	if err := em.AddListener(events.PostPersist, func(context.Context, core.EventArgs) error { return nil }); err != nil {
		t.Fatal(err)
	}
	factory := core.NewMetadataFactory(em, core.Mapping{Class: "widget", Collection: "widgets"})
	core.Register[widget](factory, core.OverrideField(func(w *widget) *string { return &w.ID }, core.PrimaryKey()))

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "admin_test_total", Help: "x"}))
	return Options{Metadata: factory, Events: em, Checks: checks, Gatherer: reg, Logger: zerolog.Nop()}
}

func newTestRouter(t *testing.T, checks map[string]Pinger) http.Handler {
	t.Helper()
	return NewRouter(newTestOptions(t, checks))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestEventsEndpoint(t *testing.T) {
	h := newTestRouter(t, nil)

	rr := get(t, h, "/events")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var body struct{ Events []EventInfo }
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Events) != len(events.All()) {
		t.Fatalf("got %d events", len(body.Events))
	}
	for _, info := range body.Events {
		if info.Name == events.PostPersist && (info.Listeners != 1 || info.Counterpart != events.PrePersist || !info.Post) {
			t.Fatalf("postPersist info %+v", info)
		}
	}

	rr = get(t, h, "/events?category=marshalling")
	body.Events = nil
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if len(body.Events) != 4 {
		t.Fatalf("marshalling events %+v", body.Events)
	}

	if rr := get(t, h, "/events?category=nope"); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad category status %d", rr.Code)
	}
	if rr := get(t, h, "/events/onFlush"); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"transaction"`) {
		t.Fatalf("single event: %d %s", rr.Code, rr.Body.String())
	}
	if rr := get(t, h, "/events/postFlush"); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown event status %d", rr.Code)
	}
}

func TestClassesAndMappings(t *testing.T) {
	h := newTestRouter(t, nil)

	var classes struct{ Classes []ClassInfo }
	_ = json.Unmarshal(get(t, h, "/classes").Body.Bytes(), &classes)
	if len(classes.Classes) != 1 {
		t.Fatalf("classes %+v", classes)
	}
	c := classes.Classes[0]
	if c.Name != "widget" || c.Collection != "widgets" || c.Identifier != "_id" || len(c.Columns) != 2 {
		t.Fatalf("class %+v", c)
	}

	if rr := get(t, h, "/mappings"); !strings.Contains(rr.Body.String(), `"class":"widget"`) {
		t.Fatalf("mappings %s", rr.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("refused") })

	if rr := get(t, newTestRouter(t, map[string]Pinger{"driver": ok}), "/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("healthy status %d", rr.Code)
	}
	rr := get(t, newTestRouter(t, map[string]Pinger{"driver": ok, "cache": down}), "/healthz")
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "refused") {
		t.Fatalf("unhealthy: %d %s", rr.Code, rr.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	rr := get(t, newTestRouter(t, nil), "/metrics")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "admin_test_total") {
		t.Fatalf("metrics: %d %s", rr.Code, rr.Body.String())
	}
}

func TestDocumentEndpoint(t *testing.T) {
	ctx := context.Background()
	opts := newTestOptions(t, nil)
	driver := memory.New()
	cache := core.NewMemoryCache()
	opts.Manager = func() *core.DocumentManager {
		return core.NewDocumentManager(driver, core.WithMetadataFactory(opts.Metadata), core.WithResultCache(cache, time.Minute))
	}
	schema, _ := opts.Metadata.MetadataOf(&widget{})
	driver.Seed(schema, map[string]any{"_id": "w1", "name": "gear"})
	h := NewRouter(opts)

	rr := get(t, h, "/classes/widget/documents/w1")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"Name":"gear"`) {
		t.Fatalf("document: %d %s", rr.Code, rr.Body.String())
	}

	// served from the result cache once the row is gone
	if err := driver.Delete(ctx, schema, nil); err != nil {
		t.Fatal(err)
	}
	if rr := get(t, h, "/classes/widget/documents/w1"); rr.Code != http.StatusOK {
		t.Fatalf("cached document status %d", rr.Code)
	}

	if rr := get(t, h, "/classes/widget/documents/w2"); rr.Code != http.StatusNotFound {
		t.Fatalf("missing document status %d", rr.Code)
	}
	if rr := get(t, h, "/classes/gadget/documents/w1"); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown class status %d", rr.Code)
	}
	if rr := get(t, newTestRouter(t, nil), "/classes/widget/documents/w1"); rr.Code != http.StatusNotFound {
		t.Fatalf("endpoint served without a manager: %d", rr.Code)
	}
}
