// Package compaction implements the Context Compactor (C7): a three-tier
// token-budget enforcement pass (warn / aggressive / emergency) applied to
// a session's message history before each LLM call.
package compaction

import (
	"context"
	"strings"
	"unicode"

	"github.com/osa/runtime/pkg/models"
)

// Level names the compaction tier that fired, reported on the
// context_pressure event.
type Level string

const (
	LevelNone            Level = "none"
	LevelWarn            Level = "warn"
	LevelAggressive      Level = "aggressive"
	LevelEmergency       Level = "emergency"
	LevelEmergencyFailed Level = "emergency_failed"
)

// Thresholds are utilization fractions (total_tokens / MaxTokens) at which
// each tier activates.
type Thresholds struct {
	Warn       float64
	Aggressive float64
	Emergency  float64
}

// DefaultThresholds returns the default warn/aggressive/emergency utilization
// thresholds (0.80 / 0.85 / 0.95).
func DefaultThresholds() Thresholds {
	return Thresholds{Warn: 0.80, Aggressive: 0.85, Emergency: 0.95}
}

// modelContextWindows is the small built-in table of per-model ceilings
// used when a caller does not supply MaxTokens explicitly.
var modelContextWindows = map[string]int{
	"claude-opus-4": 200000,
	"claude-sonnet-4": 200000,
	"claude-haiku-4": 200000,
	"gpt-4o": 128000,
	"gpt-4o-mini": 128000,
	"gpt-4-turbo": 128000,
}

// DefaultMaxTokens is used when the model is unrecognized.
const DefaultMaxTokens = 128000

// MaxTokensForModel resolves a model's context ceiling from the built-in
// table, falling back to DefaultMaxTokens.
func MaxTokensForModel(model string) int {
	if n, ok := modelContextWindows[model]; ok {
		return n
	}
	return DefaultMaxTokens
}

// Summarizer produces a synthetic summary message for a span of messages.
// Implementations typically call out to a configured LLM provider; the
// Compactor treats any error as fail-open.
type Summarizer interface {
	Summarize(ctx context.Context, messages []models.Message) (string, error)
}

// Config tunes a Compactor.
type Config struct {
	Thresholds Thresholds

	// RecentTurns is the minimum number of trailing user/assistant turns
	// always preserved, N >= 2.
	RecentTurns int

	// Summarizer performs emergency-tier summarization. May be nil (e.g.
	// disabled in tests), in which case emergency compaction fails open.
	Summarizer Summarizer

	// OnPressure is invoked whenever any tier other than LevelNone fires,
	// mirroring the context_pressure event in/ May be nil.
	OnPressure func(level Level, utilization float64)
}

// Compactor applies the three-tier compaction pipeline to a message list.
type Compactor struct {
	cfg Config
}

// New creates a Compactor, filling in defaults for zero-value fields.
func New(cfg Config) *Compactor {
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.RecentTurns < 2 {
		cfg.RecentTurns = 2
	}
	return &Compactor{cfg: cfg}
}

// EstimateTokens estimates a single message's token cost:
// round(word_count*1.3 + punctuation_count*0.5), plus a flat 4-token
// per-message overhead.
func EstimateTokens(msg models.Message) int {
	words := len(strings.Fields(msg.Content))
	punct := 0
	for _, r := range msg.Content {
		if unicode.IsPunct(r) {
			punct++
		}
	}
	est := float64(words)*1.3 + float64(punct)*0.5
	return roundHalfUp(est) + 4
}

// EstimateTotal sums EstimateTokens across messages.
func EstimateTotal(messages []models.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m)
	}
	return total
}

func roundHalfUp(f float64) int {
	if f < 0 {
		return -roundHalfUp(-f)
	}
	return int(f + 0.5)
}

// Result is the outcome of a Compact call.
type Result struct {
	Messages    []models.Message
	Level       Level
	Utilization float64
}

// Compact applies the pipeline. It never mutates the input slice; a
// compacted result is either identical to input or strictly shorter in
// message count.
func (c *Compactor) Compact(ctx context.Context, messages []models.Message, maxTokens int) Result {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	total := EstimateTotal(messages)
	utilization := float64(total) / float64(maxTokens)

	report := func(level Level) {
		if c.cfg.OnPressure != nil {
			c.cfg.OnPressure(level, utilization)
		}
	}

	switch {
	case utilization < c.cfg.Thresholds.Warn:
		return Result{Messages: messages, Level: LevelNone, Utilization: utilization}

	case utilization < c.cfg.Thresholds.Aggressive:
		report(LevelWarn)
		return Result{Messages: messages, Level: LevelWarn, Utilization: utilization}

	case utilization < c.cfg.Thresholds.Emergency:
		pruned := c.aggressivePrune(messages)
		report(LevelAggressive)
		return Result{Messages: pruned, Level: LevelAggressive, Utilization: utilization}

	default:
		summarized, err := c.emergencySummarize(ctx, messages)
		if err != nil {
			report(LevelEmergencyFailed)
			return Result{Messages: messages, Level: LevelEmergencyFailed, Utilization: utilization}
		}
		report(LevelEmergency)
		return Result{Messages: summarized, Level: LevelEmergency, Utilization: utilization}
	}
}

// aggressivePrune drops the oldest non-system, non-recent messages while
// never orphaning a tool result from its originating assistant tool call
//.
func (c *Compactor) aggressivePrune(messages []models.Message) []models.Message {
	if len(messages) == 0 {
		return messages
	}

	var systemPrefix []models.Message
	rest := messages
	if len(messages) > 0 && messages[0].Role == models.RoleSystem {
		systemPrefix = messages[:1]
		rest = messages[1:]
	}

	recentStart := recentTurnBoundary(rest, c.cfg.RecentTurns)
	recentStart = alignToToolPairBoundary(rest, recentStart)

	if recentStart <= 0 {
		return messages
	}

	kept := make([]models.Message, 0, len(systemPrefix)+len(rest)-recentStart)
	kept = append(kept, systemPrefix...)
	kept = append(kept, rest[recentStart:]...)
	return kept
}

// recentTurnBoundary finds the index into messages at which the last
// recentTurns user/assistant turns begin, counting a "turn" as a
// user-or-assistant message.
func recentTurnBoundary(messages []models.Message, recentTurns int) int {
	turns := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser || messages[i].Role == models.RoleAssistant {
			turns++
			if turns >= recentTurns {
				return i
			}
		}
	}
	return 0
}

// alignToToolPairBoundary walks boundary backward past any tool-result
// message whose originating assistant tool-call would otherwise be split
// from it.
func alignToToolPairBoundary(messages []models.Message, boundary int) int {
	for boundary > 0 && boundary < len(messages) && messages[boundary].Role == models.RoleTool {
		boundary--
	}
	return boundary
}

// emergencySummarize collapses the middle span (everything between the
// leading system message and the preserved recent turns) into one
// synthetic assistant message.
func (c *Compactor) emergencySummarize(ctx context.Context, messages []models.Message) ([]models.Message, error) {
	if c.cfg.Summarizer == nil {
		return nil, errNoSummarizer
	}

	var systemPrefix []models.Message
	rest := messages
	if len(messages) > 0 && messages[0].Role == models.RoleSystem {
		systemPrefix = messages[:1]
		rest = messages[1:]
	}

	recentStart := recentTurnBoundary(rest, c.cfg.RecentTurns)
	recentStart = alignToToolPairBoundary(rest, recentStart)
	if recentStart <= 0 {
		return messages, nil
	}

	middle := rest[:recentStart]
	tail := rest[recentStart:]

	summary, err := c.cfg.Summarizer.Summarize(ctx, middle)
	if err != nil {
		return nil, err
	}

	out := make([]models.Message, 0, len(systemPrefix)+1+len(tail))
	out = append(out, systemPrefix...)
	out = append(out, models.Message{Role: models.RoleAssistant, Content: summary})
	out = append(out, tail...)
	return out, nil
}

var errNoSummarizer = compactionError("emergency compaction requires a summarizer")

type compactionError string

func (e compactionError) Error() string { return string(e) }
