package usecases_test

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/sophialabs/httpmocker/internal/infrastructure/services"
	"github.com/sophialabs/httpmocker/internal/infrastructure/usecases"
	"github.com/sophialabs/httpmocker/internal/testutil"
	"github.com/sophialabs/httpmocker/pkg/mapper"
	"github.com/sophialabs/httpmocker/pkg/scenario"
)

const staticScenario = `[
  {"request": {"method": "GET", "path": "/static"}, "response": {"code": 200, "body": "static response"}},
  {"request": {"method": "POST"}, "response": {"code": 201}}
]`

func newLoader(source fstest.MapFS, cache bool) *usecases.LoadScenarioUseCase {
	return usecases.NewLoadScenarioUseCase(source, mapper.JSON{}, services.NewCompiler(), &testutil.NoopLogger{}, cache)
}

func TestLoadScenario_Success(t *testing.T) {
	loader := newLoader(fstest.MapFS{
		"static.json": {Data: []byte(staticScenario)},
	}, false)

	cs, err := loader.Execute(context.Background(), "static.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs.Path != "static.json" {
		t.Errorf("Path = %q, want static.json", cs.Path)
	}
	if len(cs.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(cs.Entries))
	}
	if cs.Entries[0].Index != 0 || cs.Entries[1].Index != 1 {
		t.Errorf("entries out of order: %d, %d", cs.Entries[0].Index, cs.Entries[1].Index)
	}
}

func TestLoadScenario_NotFound(t *testing.T) {
	loader := newLoader(fstest.MapFS{}, true)

	_, err := loader.Execute(context.Background(), "missing.json")
	if !errors.Is(err, scenario.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if loader.Cached() != 0 {
		t.Error("missing scenarios must not be cached")
	}
}

func TestLoadScenario_ParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "malformed json", data: `[{"request": `},
		{name: "unknown field", data: `[{"request": {"verb": "GET"}, "response": {}}]`},
		{name: "entry without outcome", data: `[{"request": {"method": "GET"}}]`},
		{name: "invalid regex", data: `[{"request": {"path": "~(unclosed"}, "response": {}}]`},
		{name: "body file escapes root", data: `[{"request": {}, "response": {"body-file": "../../etc/passwd"}}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := newLoader(fstest.MapFS{"bad.json": {Data: []byte(tt.data)}}, true)

			_, err := loader.Execute(context.Background(), "bad.json")
			var perr *scenario.ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
			if perr.Path != "bad.json" {
				t.Errorf("ParseError.Path = %q, want bad.json", perr.Path)
			}
		})
	}
}

func TestLoadScenario_CacheAndInvalidate(t *testing.T) {
	source := fstest.MapFS{
		"static.json": {Data: []byte(staticScenario)},
	}
	loader := newLoader(source, true)
	ctx := context.Background()

	first, err := loader.Execute(ctx, "static.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	source["static.json"] = &fstest.MapFile{Data: []byte(`[{"request": {}, "response": {"code": 204}}]`)}

	cached, err := loader.Execute(ctx, "static.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached != first {
		t.Error("expected the cached scenario to be returned")
	}
	if loader.Cached() != 1 {
		t.Errorf("Cached() = %d, want 1", loader.Cached())
	}

	loader.Invalidate("static.json")
	reloaded, err := loader.Execute(ctx, "static.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reloaded.Entries) != 1 {
		t.Errorf("expected reloaded scenario with 1 entry, got %d", len(reloaded.Entries))
	}

	loader.Reset()
	if loader.Cached() != 0 {
		t.Errorf("Cached() after Reset = %d, want 0", loader.Cached())
	}
}

func TestLoadScenario_NoCacheRereads(t *testing.T) {
	source := fstest.MapFS{
		"static.json": {Data: []byte(staticScenario)},
	}
	loader := newLoader(source, false)
	ctx := context.Background()

	if _, err := loader.Execute(ctx, "static.json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	delete(source, "static.json")

	if _, err := loader.Execute(ctx, "static.json"); !errors.Is(err, scenario.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after removal, got %v", err)
	}
	if loader.Cached() != 0 {
		t.Errorf("Cached() = %d, want 0", loader.Cached())
	}
}
