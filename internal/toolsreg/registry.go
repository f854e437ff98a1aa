// Package toolsreg implements the Tool Registry (C4): a mutable dispatch
// table of tool handlers with JSON-Schema argument validation, capability
// gating, hot re-registration, and weighted keyword search.
package toolsreg

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/osa/runtime/pkg/models"
)

// Tool is the contract every built-in, skill-derived, or MCP-discovered
// tool implements.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// ErrInvalidArgs is returned, unwrapped, when Execute's args fail schema
// validation.
var ErrInvalidArgs = fmt.Errorf("invalid_args")

type entry struct {
	tool    Tool
	schema  *jsonschema.Schema
	timeout time.Duration
}

// Registry holds the live tool table. Writes swap a single map entry
// atomically under the write lock of a sync.RWMutex; reads take the read
// lock, so a writer waits for in-progress reads and reads wait for a
// pending writer.
type Registry struct {
	mu             sync.RWMutex
	tools          map[string]*entry
	defaultTimeout time.Duration
}

// Config tunes registry-wide defaults.
type Config struct {
	// DefaultTimeout bounds a single tool execution. Default: 30s.
	DefaultTimeout time.Duration
}

// New creates an empty Registry.
func New(cfg Config) *Registry {
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Registry{tools: make(map[string]*entry), defaultTimeout: timeout}
}

// Register atomically installs tool, compiling its JSON-Schema parameters.
// A running session's next loop iteration observes the new tool; an
// in-flight LLM call is unaffected.
func (r *Registry) Register(tool Tool) error {
	return r.RegisterWithTimeout(tool, 0)
}

// RegisterWithTimeout is Register with a per-tool execution timeout
// override (0 uses the registry default).
func (r *Registry) RegisterWithTimeout(tool Tool, timeout time.Duration) error {
	schema, err := compileSchema(tool.Name(), tool.Parameters())
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", tool.Name(), err)
	}
	r.mu.Lock()
	r.tools[tool.Name()] = &entry{tool: tool, schema: schema, timeout: timeout}
	r.mu.Unlock()
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.tools, name)
	r.mu.Unlock()
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// ListTools returns schemas for every registered tool.
func (r *Registry) ListTools() []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]models.ToolDefinition, 0, len(r.tools))
	for name, e := range r.tools {
		defs = append(defs, models.ToolDefinition{
			Name: name,
			Description: e.tool.Description(),
			Parameters: e.tool.Parameters(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Describe returns a human-readable list of tools and their descriptions,
// used by the Context Assembler's "available tools" block.
func (r *Registry) Describe() string {
	defs := r.ListTools()
	var b strings.Builder
	for _, d := range defs {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	return b.String()
}

// FilterForCapabilities drops tools entirely when the provider declares no
// tool support, or when the model is below the provider's declared
// capability size threshold — small local models receive no tool schemas
// at all, preventing hallucinated tool calls.
func (r *Registry) FilterForCapabilities(caps models.ProviderCapabilities, modelSizeBytes int64) []models.ToolDefinition {
	if !caps.SupportsTools {
		return nil
	}
	if caps.MinToolModelSize > 0 && modelSizeBytes > 0 && modelSizeBytes < caps.MinToolModelSize {
		return nil
	}
	return r.ListTools()
}

// Execute resolves name, validates args against its compiled schema,
// dispatches with a per-tool timeout, and returns the result.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (models.ToolResult, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return models.ToolResult{Content: "tool not found: " + name, IsError: true}, nil
	}

	if e.schema != nil {
		var decoded any
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		if err := json.Unmarshal(args, &decoded); err != nil {
			return models.ToolResult{Content: "invalid JSON arguments: " + err.Error(), IsError: true}, ErrInvalidArgs
		}
		if err := e.schema.Validate(decoded); err != nil {
			return models.ToolResult{Content: "invalid_args: " + err.Error(), IsError: true}, ErrInvalidArgs
		}
	}

	timeout := e.timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		content string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		content, err := e.tool.Execute(execCtx, args)
		done <- outcome{content: content, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return models.ToolResult{Content: o.err.Error(), IsError: true}, nil
		}
		return models.ToolResult{Content: o.content}, nil
	case <-execCtx.Done():
		return models.ToolResult{Content: "tool execution timed out", IsError: true}, nil
	}
}

func compileSchema(name string, params json.RawMessage) (*jsonschema.Schema, error) {
	if len(params) == 0 {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	url := "tool://" + name
	if err := compiler.AddResource(url, strings.NewReader(string(params))); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}
