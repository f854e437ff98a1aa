package providers

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/osa/runtime/pkg/models"
)

// Registry holds the table of provider Records. Writes are rare and atomic
// (swap the record for a name) under the write lock of a sync.RWMutex;
// reads take the read lock, so a writer waits for in-progress reads and
// reads wait for a pending writer.
type Registry struct {
	mu       sync.RWMutex
	records  map[string]*Record
	defaultP string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// PutProviderConfig atomically installs or replaces a provider record.
// In-flight calls that already captured the old record continue to observe
// it — only future Chat calls see the new one.
func (r *Registry) PutProviderConfig(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.Name] = rec
	if r.defaultP == "" {
		r.defaultP = rec.Name
	}
}

// SetDefault sets the provider name used when a caller does not specify one.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultP = name
}

// List returns the names of all registered providers.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.records))
	for name := range r.records {
		names = append(names, name)
	}
	return names
}

// Info returns the record for name.
func (r *Registry) Info(name string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[name]
	return rec, ok
}

// Configured reports whether name is registered and marked configured.
func (r *Registry) Configured(name string) bool {
	rec, ok := r.Info(name)
	return ok && rec.Configured
}

func (r *Registry) recordFor(name string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaultP
	}
	rec, ok := r.records[name]
	if !ok {
		return nil, &ChatError{Kind: ErrKindCapabilityAbsent, Detail: fmt.Sprintf("provider %q not configured", name)}
	}
	if !rec.Configured {
		return nil, &ChatError{Kind: ErrKindCapabilityAbsent, Detail: fmt.Sprintf("provider %q not configured", name)}
	}
	return rec, nil
}

// Chat selects a provider by name (or the registry default), resolves the
// model, and dispatches to the provider's Chat contract.
func (r *Registry) Chat(ctx context.Context, providerName string, messages []models.Message, opts ChatOptions) (ChatResponse, error) {
	rec, err := r.recordFor(providerName)
	if err != nil {
		return ChatResponse{}, err
	}
	opts.Model = rec.ResolveModel(opts.Model, os.Getenv)

	start := time.Now()
	resp, err := rec.Provider.Chat(ctx, messages, opts)
	resp.DurationMs = time.Since(start).Milliseconds()
	return resp, err
}

// Capabilities reports a provider/model's declared capabilities for C4's
// capability gating.
func (r *Registry) Capabilities(providerName, model string) (models.ProviderCapabilities, error) {
	rec, err := r.recordFor(providerName)
	if err != nil {
		return models.ProviderCapabilities{}, err
	}
	return rec.Provider.Capabilities(model), nil
}
