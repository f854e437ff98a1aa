// Package providers implements the Provider Registry (C3): a mutable,
// read-mostly table of LLM providers with hot reconfiguration and bounded
// retry on transient transport errors.
package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/osa/runtime/pkg/models"
)

// ErrorKind classifies a ChatError for C8's retry/propagation policy.
type ErrorKind string

const (
	ErrKindTransient        ErrorKind = "transient"
	ErrKindValidation       ErrorKind = "validation"
	ErrKindCapabilityAbsent ErrorKind = "capability_absent"
)

// ChatError is the structured error a Provider returns on failure.
type ChatError struct {
	Kind   ErrorKind
	Detail string
}

func (e *ChatError) Error() string { return string(e.Kind) + ": " + e.Detail }

// ChatOptions configures a single Chat call.
type ChatOptions struct {
	Model       string
	Tools       []models.ToolDefinition
	MaxTokens   int
	Temperature float64
	System      string
}

// ChatResponse is a provider's reply to a Chat call.
type ChatResponse struct {
	Text             string
	ToolCalls        []models.ToolCall
	ThinkingBlocks   []models.ThinkingBlock
	IsPlan           bool
	PromptTokens     int
	CompletionTokens int
	DurationMs       int64
}

// Provider is the contract every LLM backend implements. Implementations
// own their own bounded retry for transient transport errors via
// BaseProvider.Retry.
type Provider interface {
	Chat(ctx context.Context, messages []models.Message, opts ChatOptions) (ChatResponse, error)
	Capabilities(model string) models.ProviderCapabilities
}

// PlanToolName is the reserved tool name a model calls to present a plan of
// action instead of taking it; both adapters recognize a tool call with
// this name as a tool-choice plan signal rather than dispatching it like an
// ordinary tool.
const PlanToolName = "present_plan"

// PlanToolDefinition is offered alongside the caller's own tools on every
// Chat call so the model always has a way to signal a plan response.
func PlanToolDefinition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        PlanToolName,
		Description: "Present a plan of action without executing it. Call this instead of any other tool when you want to describe what you intend to do before doing it.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"plan":{"type":"string","description":"The plan text to show the user."}},"required":["plan"]}`),
	}
}

type planArgs struct {
	Plan string `json:"plan"`
}

// ExtractPlanText decodes a present_plan tool call's raw JSON arguments into
// its plan text. Used by both provider adapters once they've identified a
// tool call as PlanToolName.
func ExtractPlanText(raw []byte) string {
	var args planArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return ""
	}
	return args.Plan
}

// Record is a provider's registry entry.
type Record struct {
	Name         string
	Provider     Provider
	DefaultModel string
	EnvModelVar  string   // environment variable consulted before DefaultModel
	Configured   bool
}

// ResolveModel implements opts.Model || env(provider_name) || default_model.
func (r *Record) ResolveModel(requested string, envLookup func(string) string) string {
	if requested != "" {
		return requested
	}
	if r.EnvModelVar != "" && envLookup != nil {
		if v := envLookup(r.EnvModelVar); v != "" {
			return v
		}
	}
	return r.DefaultModel
}

// BaseProvider holds shared retry configuration for LLM provider adapters.
type BaseProvider struct {
	Name       string
	MaxRetries int
	RetryDelay time.Duration
}

// NewBaseProvider creates a base provider with the default retry budget:
// 3 attempts, 250ms initial backoff, doubling per attempt.
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = 250 * time.Millisecond
	}
	return BaseProvider{Name: name, MaxRetries: maxRetries, RetryDelay: retryDelay}
}

// Retry executes op, retrying with exponential backoff while isRetryable
// accepts the error, up to MaxRetries attempts.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}
	var lastErr error
	delay := b.RetryDelay
	for attempt := 1; attempt <= b.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) {
			return err
		}
		if attempt >= b.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}
