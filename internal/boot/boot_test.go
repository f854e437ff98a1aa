package boot

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/osa/runtime/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Session.ConfigDir = t.TempDir()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.HTTPPort = 0 // let the OS assign a free port
	cfg.Cron.Interval = "@every 1h"
	return cfg
}

func TestNewWiresEveryComponent(t *testing.T) {
	rt, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rt.Bus == nil || rt.Sessions == nil || rt.Providers == nil || rt.Tools == nil ||
		rt.Classifier == nil || rt.Assembler == nil || rt.Compactor == nil ||
		rt.Tasks == nil || rt.Reaper == nil || rt.Sidecar == nil || rt.Monitor == nil || rt.SSE == nil {
		t.Fatal("expected every component to be non-nil after New")
	}
}

func TestNewRegistersBuiltinTools(t *testing.T) {
	rt, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defs := rt.Tools.ListTools()
	if len(defs) != 4 {
		t.Fatalf("expected 4 built-in tools registered, got %d", len(defs))
	}
}

func TestNewCreatesPersistedStateDirectories(t *testing.T) {
	cfg := testConfig(t)
	rt, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, dir := range []string{cfg.SessionsDir(), cfg.OSTemplatesDir(), cfg.BinariesDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected %s to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %s to be a directory", dir)
		}
	}
	_ = rt
}

func TestStartListensAndShutdownStops(t *testing.T) {
	rt, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	addr := rt.httpServer.Addr
	// The listener is live immediately after Start returns; give the
	// accept loop a moment to schedule.
	time.Sleep(20 * time.Millisecond)
	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", resp.StatusCode)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
