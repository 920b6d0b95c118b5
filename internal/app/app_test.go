package app_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sophialabs/httpmocker/internal/app"
)

func writeTestScenario(t *testing.T, dir string) {
	t.Helper()
	scenarioDir := filepath.Join(dir, "api")
	if err := os.MkdirAll(scenarioDir, 0o755); err != nil {
		t.Fatalf("failed to create scenario dir: %v", err)
	}
	scenario := `[{"request": {"method": "GET", "path": "/api/health"}, "response": {"code": 200, "body": "{\"status\":\"ok\"}"}}]`
	if err := os.WriteFile(filepath.Join(scenarioDir, "health.json"), []byte(scenario), 0o644); err != nil {
		t.Fatalf("failed to write scenario file: %v", err)
	}
}

func testConfig(t *testing.T) app.Config {
	t.Helper()
	dir := t.TempDir()
	writeTestScenario(t, dir)

	cfg := app.DefaultConfig()
	cfg.ScenarioDir = dir
	cfg.Port = freePort(t)
	cfg.LogLevel = "error"
	return cfg
}

func TestNew_Success(t *testing.T) {
	a, err := app.New(testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a == nil || a.Interceptor() == nil {
		t.Fatal("expected non-nil App")
	}
	a.Interceptor().Close()
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*app.Config)
	}{
		{name: "log level", modify: func(c *app.Config) { c.LogLevel = "loud" }},
		{name: "log format", modify: func(c *app.Config) { c.LogFormat = "xml" }},
		{name: "upstream", modify: func(c *app.Config) { c.Upstream = "not a url" }},
		{name: "mode", modify: func(c *app.Config) { c.Mode = "sometimes" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.modify(&cfg)
			if _, err := app.New(cfg); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestRun_StartsAndShutdownsGracefully(t *testing.T) {
	cfg := testConfig(t)
	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
	}()

	waitForServer(t, fmt.Sprintf("http://localhost:%d/__admin/health", cfg.Port), 3*time.Second)

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRun_ServesMocksAndForwards(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "from upstream")
	}))
	defer upstream.Close()

	cfg := testConfig(t)
	cfg.Upstream = upstream.URL
	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
	}()

	base := fmt.Sprintf("http://localhost:%d", cfg.Port)
	waitForServer(t, base+"/__admin/health", 3*time.Second)

	tests := []struct {
		path string
		want string
	}{
		{path: "/api/health", want: `{"status":"ok"}`},
		{path: "/api/other", want: "from upstream"},
	}
	for _, tt := range tests {
		resp, err := http.Get(base + tt.path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", tt.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != 200 || string(body) != tt.want {
			t.Errorf("GET %s = %d %q, want 200 %q", tt.path, resp.StatusCode, body, tt.want)
		}
	}

	// Mixed mode records forwarded traffic only when asked to.
	if _, err := os.Stat(filepath.Join(cfg.ScenarioDir, "api", "other.json")); !os.IsNotExist(err) {
		t.Errorf("unexpected recording: %v", err)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server not ready at %s after %v", url, timeout)
}
