package toolsreg

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func TestFileWriteThenFileReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "note.txt")

	writeTool := NewFileWriteTool()
	args, _ := json.Marshal(fileWriteArgs{Path: path, Content: "hello world"})
	if _, err := writeTool.Execute(context.Background(), args); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	readTool := NewFileReadTool(0)
	readArgs, _ := json.Marshal(fileReadArgs{Path: path})
	content, err := readTool.Execute(context.Background(), readArgs)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if content != "hello world" {
		t.Fatalf("expected round-tripped content, got %q", content)
	}
}

func TestFileReadRejectsMissingPath(t *testing.T) {
	readTool := NewFileReadTool(0)
	_, err := readTool.Execute(context.Background(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected an error for missing path")
	}
}

func TestFileReadBoundsBytesRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")
	writeTool := NewFileWriteTool()
	longContent := make([]byte, 1000)
	for i := range longContent {
		longContent[i] = 'a'
	}
	args, _ := json.Marshal(fileWriteArgs{Path: path, Content: string(longContent)})
	if _, err := writeTool.Execute(context.Background(), args); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	readTool := NewFileReadTool(10)
	readArgs, _ := json.Marshal(fileReadArgs{Path: path})
	content, err := readTool.Execute(context.Background(), readArgs)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(content) != 10 {
		t.Fatalf("expected read bounded to 10 bytes, got %d", len(content))
	}
}

func TestHTTPFetchReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("created"))
	}))
	defer srv.Close()

	fetchTool := NewHTTPFetchTool(5*time.Second, 0)
	args, _ := json.Marshal(httpFetchArgs{URL: srv.URL})
	out, err := fetchTool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if out != "status: 201\n\ncreated" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestHTTPFetchRejectsMissingURL(t *testing.T) {
	fetchTool := NewHTTPFetchTool(time.Second, 0)
	_, err := fetchTool.Execute(context.Background(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected an error for missing url")
	}
}

func TestShellExecReturnsOutput(t *testing.T) {
	shellTool := NewShellExecTool(5 * time.Second)
	args, _ := json.Marshal(shellExecArgs{Command: "echo hi"})
	out, err := shellTool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if out != "hi\n" {
		t.Fatalf("expected echoed output, got %q", out)
	}
}

func TestShellExecSurfacesNonZeroExit(t *testing.T) {
	shellTool := NewShellExecTool(5 * time.Second)
	args, _ := json.Marshal(shellExecArgs{Command: "exit 3"})
	_, err := shellTool.Execute(context.Background(), args)
	if err == nil {
		t.Fatal("expected a non-nil error for a failing command")
	}
}

func TestShellExecRespectsTimeout(t *testing.T) {
	shellTool := NewShellExecTool(5 * time.Second)
	args, _ := json.Marshal(shellExecArgs{Command: "sleep 2", TimeoutSeconds: 1})
	start := time.Now()
	_, err := shellTool.Execute(context.Background(), args)
	if err == nil {
		t.Fatal("expected the command to be killed by the timeout")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("expected the timeout to cut the sleep short, took %s", time.Since(start))
	}
}

func TestRegisterBuiltinsInstallsAllFour(t *testing.T) {
	reg := New(Config{})
	if err := RegisterBuiltins(reg, 0, 5*time.Second, 0, 10*time.Second); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	defs := reg.ListTools()
	if len(defs) != 4 {
		t.Fatalf("expected 4 built-in tools, got %d", len(defs))
	}
	names := map[string]bool{}
	for _, d := range defs {
		names[d.Name] = true
	}
	for _, want := range []string{"file_read", "file_write", "http_fetch", "shell_exec"} {
		if !names[want] {
			t.Fatalf("expected %s to be registered, got %+v", want, names)
		}
	}
}
