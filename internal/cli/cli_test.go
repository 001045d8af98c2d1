package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	rediscache "github.com/leandroluk/oxm/cache/redis"
	"github.com/leandroluk/oxm/config"
	"github.com/leandroluk/oxm/internal/admin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEventsTable(t *testing.T) {
	out, err := run(t, "events")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 15 {
		t.Fatalf("expected header and 14 rows, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "NAME") {
		t.Fatalf("header %q", lines[0])
	}
	if !strings.Contains(out, "prePersist") || !strings.Contains(out, "postPersist") {
		t.Fatalf("missing names:\n%s", out)
	}
}

func TestEventsJSONByCategory(t *testing.T) {
	out, err := run(t, "events", "--category", "metadata", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var infoList []admin.EventInfo
	if err := json.Unmarshal([]byte(out), &infoList); err != nil {
		t.Fatal(err)
	}
	if len(infoList) != 1 || infoList[0].Name != "loadClassMetadata" {
		t.Fatalf("got %+v", infoList)
	}

	if _, err := run(t, "events", "--category", "bogus"); err == nil {
		t.Fatal("expected unknown category error")
	}
}

func TestMappingValidate(t *testing.T) {
	good := writeFile(t, "user.yaml", "mappings:\n  - class: User\n    collection: users\n    fields:\n      - name: ID\n        column: _id\n        id: true\n")
	goodToml := writeFile(t, "order.toml", "[[mappings]]\nclass = \"Order\"\n[[mappings]]\nclass = \"Invoice\"\n")
	bad := writeFile(t, "bad.yaml", "mappings:\n  - collection: nameless\n")

	out, err := run(t, "mapping", "validate", good, goodToml)
	if err != nil {
		t.Fatalf("%v\n%s", err, out)
	}
	if !strings.Contains(out, "1 classes (User)") || !strings.Contains(out, "2 classes (Order, Invoice)") {
		t.Fatalf("output:\n%s", out)
	}

	out, err = run(t, "mapping", "validate", good, bad)
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("got %v", err)
	}
	if !strings.Contains(out, "FAIL "+bad) {
		t.Fatalf("output:\n%s", out)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	path := writeFile(t, "oxm.yaml", "driver: sqlite\n")
	if _, err := run(t, "--config", path, "events"); err == nil {
		t.Fatal("expected config error")
	}
	if _, err := run(t, "--log-level", "loud", "events"); err == nil {
		t.Fatal("expected log level error")
	}
}

func TestWireMemory(t *testing.T) {
	cfg := config.Default()
	cfg.MappingFiles = []string{writeFile(t, "user.yaml", "mappings:\n  - class: User\n")}

	opts, cleanup, err := wire(context.Background(), cfg, zerolog.Nop(), prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	if _, ok := opts.Checks["driver"]; !ok {
		t.Fatalf("driver check missing: %v", opts.Checks)
	}
	if err := opts.Checks["driver"].Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := opts.Metadata.MappingFor("User"); !ok {
		t.Fatal("mapping not loaded")
	}
	dm := opts.Manager()
	if cache, _ := dm.ResultCache(); cache != nil || dm.Metadata() != opts.Metadata {
		t.Fatal("manager without redis should share the factory and skip the cache")
	}
}

func TestWireResultCache(t *testing.T) {
	cfg := config.Default()
	cfg.RedisURL = "localhost:1"
	cfg.CacheTTL = config.Duration(42 * time.Second)

	opts, cleanup, err := wire(context.Background(), cfg, zerolog.Nop(), prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	if _, ok := opts.Checks["cache"]; !ok {
		t.Fatalf("cache check missing: %v", opts.Checks)
	}
	cache, ttl := opts.Manager().ResultCache()
	if _, ok := cache.(*rediscache.Cache); !ok || ttl != 42*time.Second {
		t.Fatalf("result cache %T with ttl %s", cache, ttl)
	}
}
