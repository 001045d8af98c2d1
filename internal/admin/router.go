// Package admin serves the read-only admin API of the oxm command.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leandroluk/oxm/core"
	"github.com/leandroluk/oxm/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the router to the running components.
type Options struct {
	Metadata *core.MetadataFactory
	Events   *core.EventManager
	Checks   map[string]Pinger
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
	// Manager returns a fresh document manager per request. Nil disables the
	// document endpoint.
	Manager func() *core.DocumentManager
}

// EventInfo describes one registered event name.
type EventInfo struct {
	Name        events.Name     `json:"name"`
	Category    events.Category `json:"category"`
	Counterpart events.Name     `json:"counterpart,omitempty"`
	Pre         bool            `json:"pre"`
	Post        bool            `json:"post"`
	Listeners   int             `json:"listeners"`
}

// ClassInfo describes one loaded class.
type ClassInfo struct {
	Name       string   `json:"name"`
	Database   string   `json:"database,omitempty"`
	Collection string   `json:"collection"`
	Identifier string   `json:"identifier,omitempty"`
	Columns    []string `json:"columns"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: status})
}

// DescribeEvents lists the names of category (every name when empty) with
// the number of listeners registered on em. em may be nil.
func DescribeEvents(em *core.EventManager, category events.Category) []EventInfo {
	nameList := events.All()
	if category != "" {
		nameList = events.ByCategory(category)
	}
	out := make([]EventInfo, 0, len(nameList))
	for _, name := range nameList {
		info := EventInfo{Name: name, Category: name.Category(), Pre: name.IsPre(), Post: name.IsPost()}
		if counterpart, ok := name.Counterpart(); ok {
			info.Counterpart = counterpart
		}
		if em != nil {
			info.Listeners = em.ListenerCount(name)
		}
		out = append(out, info)
	}
	return out
}

func describeClass(schema *core.SchemaCore) ClassInfo {
	info := ClassInfo{Name: schema.Name, Database: schema.Database, Collection: schema.Collection, Columns: []string{}}
	if id := schema.IdentifierField(); id != nil {
		info.Identifier = id.DatabaseColumnName
	}
	for _, f := range schema.Fields {
		info.Columns = append(info.Columns, f.DatabaseColumnName)
	}
	return info
}

// NewRouter builds the admin routes:
//
//	GET /events     registered event names, optionally ?category=
//	GET /classes    loaded class metadata
//	GET /classes/{name}/documents/{id}
//	                one document, read through the result cache
//	GET /mappings   registered mapping files
//	GET /healthz    backend checks
//	GET /metrics    Prometheus metrics
func NewRouter(opts Options) http.Handler {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(opts.Logger))

	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		category := events.Category(r.URL.Query().Get("category"))
		if category != "" && !validCategory(category) {
			writeJSONError(w, http.StatusBadRequest, "unknown category")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": DescribeEvents(opts.Events, category)})
	})

	r.Get("/events/{name}", func(w http.ResponseWriter, r *http.Request) {
		name, ok := events.Lookup(chi.URLParam(r, "name"))
		if !ok {
			writeJSONError(w, http.StatusNotFound, "unknown event")
			return
		}
		for _, info := range DescribeEvents(opts.Events, name.Category()) {
			if info.Name == name {
				writeJSON(w, http.StatusOK, info)
				return
			}
		}
	})

	r.Get("/classes", func(w http.ResponseWriter, r *http.Request) {
		classList := []ClassInfo{}
		if opts.Metadata != nil {
			for _, schema := range opts.Metadata.LoadedMetadata() {
				classList = append(classList, describeClass(schema))
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"classes": classList})
	})

	r.Get("/classes/{name}/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		if opts.Manager == nil || opts.Metadata == nil {
			writeJSONError(w, http.StatusNotFound, "documents not served")
			return
		}
		schema := loadedClass(opts.Metadata, chi.URLParam(r, "name"))
		if schema == nil {
			writeJSONError(w, http.StatusNotFound, "unknown class")
			return
		}
		doc, err := core.FindDocument(r.Context(), opts.Manager(), schema, chi.URLParam(r, "id"))
		switch {
		case errors.Is(err, core.ErrDocumentNotFound):
			writeJSONError(w, http.StatusNotFound, "document not found")
		case err != nil:
			opts.Logger.Warn().Err(err).Str("class", schema.Name).Msg("document lookup failed")
			writeJSONError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, doc)
		}
	})

	r.Get("/mappings", func(w http.ResponseWriter, r *http.Request) {
		mappingList := []core.Mapping{}
		if opts.Metadata != nil {
			mappingList = opts.Metadata.Mappings()
		}
		writeJSON(w, http.StatusOK, map[string]any{"mappings": mappingList})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		checks := map[string]string{}
		for name, p := range opts.Checks {
			if err := p.Ping(ctx); err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": checks})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	return r
}

func loadedClass(f *core.MetadataFactory, name string) *core.SchemaCore {
	for _, schema := range f.LoadedMetadata() {
		if schema.Name == name {
			return schema
		}
	}
	return nil
}

func validCategory(c events.Category) bool {
	for _, known := range events.Categories() {
		if known == c {
			return true
		}
	}
	return false
}

func requestLogger(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			l.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("admin request")
		})
	}
}
