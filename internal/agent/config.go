package agent

import (
	"time"

	"github.com/osa/runtime/internal/compaction"
	"github.com/osa/runtime/internal/contextasm"
	"github.com/osa/runtime/internal/eventbus"
	"github.com/osa/runtime/internal/observability"
	"github.com/osa/runtime/internal/providers"
	"github.com/osa/runtime/internal/signal"
	"github.com/osa/runtime/internal/toolsreg"
	"github.com/osa/runtime/pkg/models"
)

// Dependencies wires the session worker to the other core components. All
// fields are required except Logger/Metrics, which default to no-ops.
type Dependencies struct {
	Bus        *eventbus.Bus
	Providers  *providers.Registry
	Tools      *toolsreg.Registry
	Classifier *signal.Classifier
	Assembler  *contextasm.Assembler
	Compactor  *compaction.Compactor
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Config tunes a Worker's loop behavior.
type Config struct {
	// MaxIterations caps ReAct iterations per process call. Default: 20.
	MaxIterations int

	// DefaultProvider/DefaultModel are used when Options leave them empty.
	DefaultProvider string
	DefaultModel string

	// Identity is the static first block of every assembled system prompt.
	Identity string

	// Policy is the default permission policy; Options.Permission
	// overrides its Mode for a single call.
	Policy Policy

	// ModelSizeBytes feeds ToolRegistry.FilterForCapabilities' small-model
	// gate; 0 disables the check.
	ModelSizeBytes int64
}

// DefaultConfig returns the default MaxIterations (20) and a
// default-mode permission policy that denies every prompt (no UI
// attached), matching the default mode's "prompt-required" disposition.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 20,
		Policy: Policy{Mode: PermissionDefault},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	if cfg.Policy.Mode == "" {
		cfg.Policy.Mode = PermissionDefault
	}
	return cfg
}

// Options are the per-call overrides accepted by Process.
type Options struct {
	Provider       string
	Model          string
	SkipPlan       bool
	ExtraTools     []models.ToolDefinition
	Timeout        time.Duration
	PermissionMode PermissionMode
	Channel        string
}

// Status names the terminal state a Process call reached.
type Status string

const (
	StatusOK        Status = "ok"
	StatusPlan      Status = "plan"
	StatusFiltered  Status = "filtered"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Result is the ingress contract's return value: exactly one of the
// branches described by Status is populated.
type Result struct {
	Status         Status
	Response       string
	Signal         models.Signal
	Reason         string
	IterationCount int
	SkillsUsed     []string
}
