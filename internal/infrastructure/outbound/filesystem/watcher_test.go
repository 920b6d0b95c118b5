package filesystem_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sophialabs/httpmocker/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/httpmocker/internal/testutil"
)

func startWatcher(t *testing.T, dir string) <-chan []string {
	t.Helper()
	changes := make(chan []string, 10)
	w, err := filesystem.NewWatcher(dir, 50*time.Millisecond, &testutil.NoopLogger{}, func(paths []string) {
		changes <- paths
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return changes
}

func waitChange(t *testing.T, changes <-chan []string) []string {
	t.Helper()
	select {
	case paths := <-changes:
		return paths
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change notification")
		return nil
	}
}

func TestWatcher_ReportsRelativePaths(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "api"), 0o755)
	changes := startWatcher(t, dir)

	os.WriteFile(filepath.Join(dir, "api", "users.json"), []byte("[]"), 0o644)

	paths := waitChange(t, changes)
	if len(paths) != 1 || paths[0] != "api/users.json" {
		t.Errorf("paths = %v, want [api/users.json]", paths)
	}
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	changes := startWatcher(t, dir)

	for range 5 {
		os.WriteFile(filepath.Join(dir, "a.json"), []byte("[]"), 0o644)
	}

	paths := waitChange(t, changes)
	if len(paths) != 1 {
		t.Errorf("expected one deduplicated path, got %v", paths)
	}
	select {
	case extra := <-changes:
		t.Errorf("unexpected second notification: %v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_IgnoresTempFilesAndAtomicWritesReportTarget(t *testing.T) {
	dir := t.TempDir()
	store, err := filesystem.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	changes := startWatcher(t, dir)

	if err := store.WriteAtomic("b.json", []byte("[]")); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}

	paths := waitChange(t, changes)
	if len(paths) != 1 || paths[0] != "b.json" {
		t.Errorf("paths = %v, want [b.json]", paths)
	}
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	dir := t.TempDir()
	changes := startWatcher(t, dir)

	sub := filepath.Join(dir, "new")
	os.MkdirAll(sub, 0o755)
	time.Sleep(100 * time.Millisecond)
	os.WriteFile(filepath.Join(sub, "c.json"), []byte("[]"), 0o644)

	paths := waitChange(t, changes)
	if len(paths) != 1 || paths[0] != "new/c.json" {
		t.Errorf("paths = %v, want [new/c.json]", paths)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := filesystem.NewWatcher(t.TempDir(), 0, &testutil.NoopLogger{}, func([]string) {})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Start(context.Background())
	w.Stop()
	w.Stop()

	if err := w.Start(context.Background()); err == nil {
		t.Error("Start after Stop should fail")
	}
}
