package toolsreg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
)

func reflectSchema(v any) json.RawMessage {
	r := &jsonschema.Reflector{ExpandedStruct: true}
	schema := r.Reflect(v)
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// FileReadTool reads a file from the local filesystem, bounded to
// maxBytes (0 disables the bound).
type FileReadTool struct {
	maxBytes int64
}

type fileReadArgs struct {
	Path string `json:"path" jsonschema:"required,description=Path to the file to read"`
}

// NewFileReadTool creates the file_read built-in, capping reads at
// maxBytes (0 means unbounded).
func NewFileReadTool(maxBytes int64) *FileReadTool {
	return &FileReadTool{maxBytes: maxBytes}
}

func (t *FileReadTool) Name() string        { return "file_read" }
func (t *FileReadTool) Description() string { return "Read the contents of a file." }
func (t *FileReadTool) Parameters() json.RawMessage {
	return reflectSchema(&fileReadArgs{})
}

func (t *FileReadTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in fileReadArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(in.Path) == "" {
		return "", fmt.Errorf("path is required")
	}
	f, err := os.Open(in.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var r io.Reader = f
	if t.maxBytes > 0 {
		r = io.LimitReader(f, t.maxBytes)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FileWriteTool writes a file to the local filesystem, creating parent
// directories as needed.
type FileWriteTool struct{}

type fileWriteArgs struct {
	Path    string `json:"path" jsonschema:"required,description=Path to write"`
	Content string `json:"content" jsonschema:"required,description=Content to write"`
	Append  bool   `json:"append,omitempty" jsonschema:"description=Append instead of overwrite"`
}

// NewFileWriteTool creates the file_write built-in.
func NewFileWriteTool() *FileWriteTool { return &FileWriteTool{} }

func (t *FileWriteTool) Name() string        { return "file_write" }
func (t *FileWriteTool) Description() string { return "Write content to a file, creating parent directories as needed." }
func (t *FileWriteTool) Parameters() json.RawMessage {
	return reflectSchema(&fileWriteArgs{})
}

func (t *FileWriteTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in fileWriteArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(in.Path) == "" {
		return "", fmt.Errorf("path is required")
	}
	if err := os.MkdirAll(filepath.Dir(in.Path), 0o755); err != nil {
		return "", err
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if in.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(in.Path, flags, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(in.Content); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path), nil
}

// HTTPFetchTool issues a bounded HTTP request and returns the response
// body, used for web/API access from the agent loop.
type HTTPFetchTool struct {
	client   *http.Client
	maxBytes int64
}

type httpFetchArgs struct {
	URL     string            `json:"url" jsonschema:"required,description=URL to fetch"`
	Method  string            `json:"method,omitempty" jsonschema:"description=HTTP method; defaults to GET"`
	Headers map[string]string `json:"headers,omitempty" jsonschema:"description=Request headers"`
	Body    string            `json:"body,omitempty" jsonschema:"description=Request body"`
}

// NewHTTPFetchTool creates the http_fetch built-in with the given request
// timeout and response size bound.
func NewHTTPFetchTool(timeout time.Duration, maxBytes int64) *HTTPFetchTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetchTool{client: &http.Client{Timeout: timeout}, maxBytes: maxBytes}
}

func (t *HTTPFetchTool) Name() string        { return "http_fetch" }
func (t *HTTPFetchTool) Description() string { return "Fetch a URL over HTTP(S) and return the response body." }
func (t *HTTPFetchTool) Parameters() json.RawMessage {
	return reflectSchema(&httpFetchArgs{})
}

func (t *HTTPFetchTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in httpFetchArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(in.URL) == "" {
		return "", fmt.Errorf("url is required")
	}
	method := strings.ToUpper(strings.TrimSpace(in.Method))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if in.Body != "" {
		body = strings.NewReader(in.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, in.URL, body)
	if err != nil {
		return "", err
	}
	for k, v := range in.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if t.maxBytes > 0 {
		r = io.LimitReader(resp.Body, t.maxBytes)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("status: %d\n\n%s", resp.StatusCode, string(data)), nil
}

// ShellExecTool runs a shell command and returns its combined output.
// It runs the command directly on the host with no sandboxing, container,
// or VM isolation.
type ShellExecTool struct {
	defaultTimeout time.Duration
}

type shellExecArgs struct {
	Command        string `json:"command" jsonschema:"required,description=Shell command to run"`
	Cwd            string `json:"cwd,omitempty" jsonschema:"description=Working directory"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"description=Timeout in seconds; 0 uses the tool default"`
}

// NewShellExecTool creates the shell_exec built-in with a default
// per-call timeout used when the caller does not specify one.
func NewShellExecTool(defaultTimeout time.Duration) *ShellExecTool {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &ShellExecTool{defaultTimeout: defaultTimeout}
}

func (t *ShellExecTool) Name() string        { return "shell_exec" }
func (t *ShellExecTool) Description() string { return "Run a shell command and return its combined stdout/stderr." }
func (t *ShellExecTool) Parameters() json.RawMessage {
	return reflectSchema(&shellExecArgs{})
}

func (t *ShellExecTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in shellExecArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(in.Command) == "" {
		return "", fmt.Errorf("command is required")
	}

	timeout := t.defaultTimeout
	if in.TimeoutSeconds > 0 {
		timeout = time.Duration(in.TimeoutSeconds) * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", in.Command)
	if in.Cwd != "" {
		cmd.Dir = in.Cwd
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err != nil {
		return out.String(), fmt.Errorf("command failed: %w", err)
	}
	return out.String(), nil
}

// RegisterBuiltins registers the four core built-in tools (file_read,
// file_write, http_fetch, shell_exec) with reg, sized and timed by the
// given read/fetch byte bounds and fetch/shell timeouts.
func RegisterBuiltins(reg *Registry, readMaxBytes int64, fetchTimeout time.Duration, fetchMaxBytes int64, shellTimeout time.Duration) error {
	tools := []Tool{
		NewFileReadTool(readMaxBytes),
		NewFileWriteTool(),
		NewHTTPFetchTool(fetchTimeout, fetchMaxBytes),
		NewShellExecTool(shellTimeout),
	}
	for _, tool := range tools {
		if err := reg.Register(tool); err != nil {
			return fmt.Errorf("register %s: %w", tool.Name(), err)
		}
	}
	return nil
}
