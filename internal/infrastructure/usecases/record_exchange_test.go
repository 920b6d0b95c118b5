package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sophialabs/httpmocker/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/httpmocker/internal/infrastructure/usecases"
	"github.com/sophialabs/httpmocker/internal/testutil"
	"github.com/sophialabs/httpmocker/pkg/mapper"
	"github.com/sophialabs/httpmocker/pkg/policy"
	"github.com/sophialabs/httpmocker/pkg/scenario"
)

func newStore(t *testing.T) *filesystem.Store {
	t.Helper()
	store, err := filesystem.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func readEntries(t *testing.T, store *filesystem.Store, name string) []scenario.Entry {
	t.Helper()
	data, err := store.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", name, err)
	}
	entries, err := mapper.JSON{}.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal(%s): %v", name, err)
	}
	return entries
}

func recordRequest() *scenario.Request {
	return &scenario.Request{
		Method:  "GET",
		Scheme:  "http",
		Host:    "example.com",
		Port:    80,
		Path:    "/record/request",
		Params:  []scenario.KeyValue{{Name: "page", Value: "1"}},
		Headers: []scenario.KeyValue{{Name: "Accept", Value: "application/json"}},
	}
}

func okResponse(body string) *scenario.Response {
	return &scenario.Response{
		Code:    200,
		Headers: []scenario.KeyValue{{Name: "Content-Type", Value: "application/json"}},
		Body:    []byte(body),
	}
}

func TestRecordExchange_WritesScenarioAndBody(t *testing.T) {
	store := newStore(t)
	var recorded []string
	uc := usecases.NewRecordExchangeUseCase(store, policy.MirrorPath{}, mapper.JSON{}, &testutil.NoopLogger{},
		func(p string) { recorded = append(recorded, p) }, false)

	target, err := uc.Execute(context.Background(), usecases.Exchange{Request: recordRequest(), Response: okResponse(`{"ok":true}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target != "record/request.json" {
		t.Errorf("target = %q, want record/request.json", target)
	}
	if diff := cmp.Diff([]string{"record/request.json"}, recorded); diff != "" {
		t.Errorf("onRecorded mismatch (-want +got):\n%s", diff)
	}

	body, err := store.ReadFile("record/request_body_0.txt")
	if err != nil {
		t.Fatalf("body file not written: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}

	path := scenario.Exact("/record/request")
	page := scenario.Exact("1")
	accept := scenario.Exact("application/json")
	want := []scenario.Entry{{
		Request: scenario.RequestTemplate{
			Method:  "GET",
			Path:    &path,
			Params:  []scenario.FieldMatcher{{Name: "page", Value: &page}},
			Headers: []scenario.FieldMatcher{{Name: "Accept", Value: &accept}},
		},
		Response: &scenario.ResponseDescriptor{
			Code:      200,
			MediaType: "application/json",
			Headers:   []scenario.KeyValue{{Name: "Content-Type", Value: "application/json"}},
			BodyFile:  "request_body_0.txt",
		},
	}}
	if diff := cmp.Diff(want, readEntries(t, store, target)); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordExchange_AppendsEntries(t *testing.T) {
	store := newStore(t)
	uc := usecases.NewRecordExchangeUseCase(store, policy.MirrorPath{}, mapper.JSON{}, &testutil.NoopLogger{}, nil, false)
	ctx := context.Background()

	for i := range 3 {
		if _, err := uc.Execute(ctx, usecases.Exchange{Request: recordRequest(), Response: okResponse(fmt.Sprintf("body %d", i))}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	entries := readEntries(t, store, "record/request.json")
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		want := fmt.Sprintf("request_body_%d.txt", i)
		if e.Response.BodyFile != want {
			t.Errorf("entry %d BodyFile = %q, want %q", i, e.Response.BodyFile, want)
		}
	}
}

func TestRecordExchange_EmptyBody(t *testing.T) {
	store := newStore(t)
	uc := usecases.NewRecordExchangeUseCase(store, policy.MirrorPath{}, mapper.JSON{}, &testutil.NoopLogger{}, nil, false)

	resp := &scenario.Response{Code: 204}
	if _, err := uc.Execute(context.Background(), usecases.Exchange{Request: recordRequest(), Response: resp}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := readEntries(t, store, "record/request.json")
	if entries[0].Response.BodyFile != "" {
		t.Errorf("expected no body file, got %q", entries[0].Response.BodyFile)
	}
	files, err := os.ReadDir(filepath.Join(store.Root(), "record"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("expected only the scenario file, got %d files", len(files))
	}
}

func TestRecordExchange_NetworkError(t *testing.T) {
	store := newStore(t)
	uc := usecases.NewRecordExchangeUseCase(store, policy.MirrorPath{}, mapper.JSON{}, &testutil.NoopLogger{}, nil, false)

	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	ex := usecases.Exchange{Request: recordRequest(), Err: fmt.Errorf("round trip: %w", netErr)}
	if _, err := uc.Execute(context.Background(), ex); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := readEntries(t, store, "record/request.json")
	if entries[0].Response != nil {
		t.Error("expected no response for a failed exchange")
	}
	got := entries[0].Error
	if got == nil {
		t.Fatal("expected a recorded network error")
	}
	if got.Type != "*errors.errorString" {
		t.Errorf("Type = %q, want the innermost error type", got.Type)
	}
	if got.Message != ex.Err.Error() {
		t.Errorf("Message = %q, want %q", got.Message, ex.Err.Error())
	}
}

func TestRecordExchange_CorruptScenarioLeftUntouched(t *testing.T) {
	store := newStore(t)
	corrupt := []byte(`[{"request": `)
	if err := store.WriteAtomic("record/request.json", corrupt); err != nil {
		t.Fatal(err)
	}
	uc := usecases.NewRecordExchangeUseCase(store, policy.MirrorPath{}, mapper.JSON{}, &testutil.NoopLogger{}, nil, false)

	_, err := uc.Execute(context.Background(), usecases.Exchange{Request: recordRequest(), Response: okResponse("x")})
	var rerr *scenario.RecordingError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RecordingError, got %v", err)
	}
	if rerr.Path != "record/request.json" {
		t.Errorf("RecordingError.Path = %q", rerr.Path)
	}

	data, err := store.ReadFile("record/request.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(corrupt) {
		t.Errorf("corrupt scenario was modified: %q", data)
	}
	if _, err := store.ReadFile("record/request_body_0.txt"); err == nil {
		t.Error("no body file should be written for an aborted recording")
	}
}

func TestRecordExchange_IgnoreErrors(t *testing.T) {
	store := newStore(t)
	if err := store.WriteAtomic("record/request.json", []byte("garbage")); err != nil {
		t.Fatal(err)
	}
	logger := &testutil.RecordingLogger{}
	called := false
	uc := usecases.NewRecordExchangeUseCase(store, policy.MirrorPath{}, mapper.JSON{}, logger,
		func(string) { called = true }, true)

	if _, err := uc.Execute(context.Background(), usecases.Exchange{Request: recordRequest(), Response: okResponse("x")}); err != nil {
		t.Fatalf("expected the error to be ignored, got %v", err)
	}
	if !logger.Has("ERROR", "failed to record exchange") {
		t.Errorf("expected the failure to be logged, got %v", logger.Messages)
	}
	if called {
		t.Error("onRecorded must not run for a failed recording")
	}
}

// failingWriteStore fails every scenario write after the body file is claimed.
type failingWriteStore struct {
	*filesystem.Store
}

func (s failingWriteStore) WriteAtomic(string, []byte) error {
	return errors.New("disk full")
}

func TestRecordExchange_RemovesOrphanBodyFile(t *testing.T) {
	store := newStore(t)
	uc := usecases.NewRecordExchangeUseCase(failingWriteStore{store}, policy.MirrorPath{}, mapper.JSON{}, &testutil.NoopLogger{}, nil, false)

	_, err := uc.Execute(context.Background(), usecases.Exchange{Request: recordRequest(), Response: okResponse("x")})
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, err := store.ReadFile("record/request_body_0.txt"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected the orphaned body file to be removed, got %v", err)
	}
}

func TestRecordExchange_Concurrent(t *testing.T) {
	store := newStore(t)
	uc := usecases.NewRecordExchangeUseCase(store, policy.MirrorPath{}, mapper.JSON{}, &testutil.NoopLogger{}, nil, false)
	const n = 20

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.Execute(context.Background(), usecases.Exchange{Request: recordRequest(), Response: okResponse(fmt.Sprintf("body %d", i))})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	entries := readEntries(t, store, "record/request.json")
	if len(entries) != n {
		t.Fatalf("expected %d entries, got %d", n, len(entries))
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		if seen[e.Response.BodyFile] {
			t.Errorf("body file %s shared by two entries", e.Response.BodyFile)
		}
		seen[e.Response.BodyFile] = true
		if _, err := store.ReadFile("record/" + e.Response.BodyFile); err != nil {
			t.Errorf("body file %s missing: %v", e.Response.BodyFile, err)
		}
	}
}

func TestTemplateFor(t *testing.T) {
	req := &scenario.Request{Method: "POST", Path: "/a", Body: []byte("payload")}
	tmpl := usecases.TemplateFor(req)

	if tmpl.Method != "POST" || tmpl.Path == nil || *tmpl.Path != scenario.Exact("/a") {
		t.Errorf("unexpected template: %+v", tmpl)
	}
	if tmpl.Body == nil || *tmpl.Body != scenario.Exact("payload") {
		t.Errorf("Body = %v, want exact payload", tmpl.Body)
	}
	if usecases.TemplateFor(&scenario.Request{Method: "GET", Path: "/a"}).Body != nil {
		t.Error("requests without body must not constrain the body")
	}

	binary := []byte{0xff, 0xfe, 0x01, 'a'}
	tmpl = usecases.TemplateFor(&scenario.Request{Method: "POST", Path: "/bin", Body: binary})
	if tmpl.Body == nil || *tmpl.Body != scenario.Bytes(binary) {
		t.Errorf("Body = %v, want a byte matcher for a non-UTF-8 body", tmpl.Body)
	}
	data, err := mapper.JSON{}.Marshal([]scenario.Entry{{Request: tmpl}})
	if err != nil {
		t.Fatal(err)
	}
	entries, err := mapper.JSON{}.Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := entries[0].Request.Body; got == nil || *got != scenario.Bytes(binary) {
		t.Errorf("body matcher did not survive JSON: %v", got)
	}
}
