// Package signal implements the Signal Classifier (C5): a deterministic
// heuristic pre-classify pass, optional LLM refinement, and the noise
// filter that gates whether a message reaches the LLM at all.
package signal

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/osa/runtime/pkg/models"
)

// Refiner is the optional LLM-backed refinement step. It returns only the
// fields it is confident about; zero-value fields do not override the
// heuristic result.
type Refiner func(ctx context.Context, text string) (Partial, error)

// Partial is a possibly-incomplete override produced by a Refiner.
type Partial struct {
	Mode   models.Mode
	Genre  models.Genre
	Type   string
	Weight *float64
}

// Config tunes the classifier.
type Config struct {
	// NoiseThreshold is the minimum weight that lets a message reach the
	// LLM. Default: 0.6.
	NoiseThreshold float64

	// EnableLLMRefinement turns on the optional refinement step.
	EnableLLMRefinement bool

	// MinSizeForLLM is the minimum text length (runes) before refinement
	// is attempted.
	MinSizeForLLM int

	// Refine is called when EnableLLMRefinement is true and text is long
	// enough. May be nil even when enabled, in which case refinement is a
	// no-op (fail-open: heuristic result stands).
	Refine Refiner
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{NoiseThreshold: 0.6, EnableLLMRefinement: false, MinSizeForLLM: 40}
}

// Classifier implements the 5-tuple classification pipeline.
type Classifier struct {
	cfg Config
}

// New creates a Classifier. A zero Config is replaced with DefaultConfig.
func New(cfg Config) *Classifier {
	if cfg.NoiseThreshold == 0 {
		cfg.NoiseThreshold = DefaultConfig().NoiseThreshold
	}
	return &Classifier{cfg: cfg}
}

// Result is the classifier's output: the Signal plus whether it was
// filtered by the noise threshold.
type Result struct {
	Signal   models.Signal
	Filtered bool
}

// Classify runs the full pipeline for a single inbound message. The result
// is deterministic for a given input + threshold + toggle state when no
// Refiner is installed, and remains deterministic with one installed only
// insofar as the Refiner itself is deterministic.
func (c *Classifier) Classify(ctx context.Context, text, channel string) Result {
	sig := heuristicClassify(text, channel)

	if c.cfg.EnableLLMRefinement && c.cfg.Refine != nil && len([]rune(text)) >= c.cfg.MinSizeForLLM {
		if partial, err := c.cfg.Refine(ctx, text); err == nil {
			applyPartial(&sig, partial)
		}
	}

	sig.ClampWeight()
	return Result{Signal: sig, Filtered: sig.Weight < c.cfg.NoiseThreshold}
}

func applyPartial(sig *models.Signal, p Partial) {
	if p.Mode != "" {
		sig.Mode = p.Mode
	}
	if p.Genre != "" {
		sig.Genre = p.Genre
	}
	if p.Type != "" {
		sig.Type = p.Type
	}
	if p.Weight != nil {
		sig.Weight = *p.Weight
	}
}

var (
	executeWords  = regexp.MustCompile( `(?i)\b(run|execute|do|perform|start|launch|deploy)\b`)
	buildWords    = regexp.MustCompile( `(?i)\b(build|create|implement|add|write|generate|scaffold)\b`)
	maintainWords = regexp.MustCompile( `(?i)\b(fix|refactor|update|patch|clean up|rename|remove)\b`)
	analyzeWords  = regexp.MustCompile( `(?i)\b(analyze|explain|why|investigate|review|compare|summarize)\b`)
	assistWords   = regexp.MustCompile( `(?i)\b(help|please|could you|can you|assist)\b`)

	commitWords  = regexp.MustCompile( `(?i)\b(will|i'll|promise|going to|plan to)\b`)
	decideWords  = regexp.MustCompile( `(?i)\b(should i|should we|which|what if|decide|choose)\b`)
	expressWords = regexp.MustCompile( `(?i)\b(feel|feeling|glad|frustrated|thanks|thank you|sorry)\b`)
	directWords  = regexp.MustCompile( `^\s*(please\s+)?(run|create|build|fix|add|remove|write|do|send|delete)\b`)
)

// heuristicClassify fills fields in a fixed priority order — mode, then
// genre, then type, then format, then weight — so identical input yields
// an identical result.
func heuristicClassify(text, channel string) models.Signal {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	sig := models.Signal{
		Timestamp: time.Now(),
		Channel: channel,
	}

	switch {
	case executeWords.MatchString(lower):
		sig.Mode = models.ModeExecute
	case buildWords.MatchString(lower):
		sig.Mode = models.ModeBuild
	case maintainWords.MatchString(lower):
		sig.Mode = models.ModeMaintain
	case analyzeWords.MatchString(lower):
		sig.Mode = models.ModeAnalyze
	default:
		sig.Mode = models.ModeAssist
	}

	switch {
	case directWords.MatchString(lower):
		sig.Genre = models.GenreDirect
	case commitWords.MatchString(lower):
		sig.Genre = models.GenreCommit
	case strings.HasSuffix(trimmed, "?") || decideWords.MatchString(lower):
		sig.Genre = models.GenreDecide
	case expressWords.MatchString(lower):
		sig.Genre = models.GenreExpress
	default:
		sig.Genre = models.GenreInform
	}

	switch {
	case strings.HasSuffix(trimmed, "?"):
		sig.Type = "question"
	case directWords.MatchString(lower):
		sig.Type = "command"
	case strings.Contains(lower, "error") || strings.Contains(lower, "failed") || strings.Contains(lower, "broke"):
		sig.Type = "report"
	default:
		sig.Type = "statement"
	}

	sig.Format = formatForChannel(channel)
	sig.Weight = weightOf(trimmed)
	return sig
}

func formatForChannel(channel string) string {
	switch strings.ToLower(channel) {
	case "cli":
		return "command"
	case "webhook":
		return "webhook"
	case "":
		return "message"
	default:
		return "message"
	}
}

// weightOf estimates informational density from word count, punctuation,
// and substance, normalized into [0,1].
func weightOf(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	words := strings.Fields(trimmed)
	wordCount := len(words)
	if wordCount == 0 {
		return 0
	}

	// Punctuation-only filler has zero alphanumeric density and scores near
	// zero; a single alphanumeric character still scores about 0.54.
	alnum := 0
	for _, r := range trimmed {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			alnum++
		}
	}
	density := float64(alnum) / float64(len(trimmed))

	lengthScore := float64(wordCount) / 12.0
	if lengthScore > 1 {
		lengthScore = 1
	}

	weight := 0.5*lengthScore + 0.5*density
	if weight > 1 {
		weight = 1
	}
	if weight < 0 {
		weight = 0
	}
	return weight
}
