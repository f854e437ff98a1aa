package compaction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/osa/runtime/pkg/models"
)

func makeMessage(role models.Role, content string) models.Message {
	return models.Message{Role: role, Content: content}
}

func longHistory(n int) []models.Message {
	msgs := []models.Message{makeMessage(models.RoleSystem, "You are OSA.")}
	for i := 0; i < n; i++ {
		msgs = append(msgs, makeMessage(models.RoleUser, strings.Repeat("word ", 200)))
		msgs = append(msgs, makeMessage(models.RoleAssistant, strings.Repeat("reply ", 200)))
	}
	return msgs
}

func TestCompactBelowWarnLeavesUntouched(t *testing.T) {
	c := New(Config{})
	messages := longHistory(1)
	result := c.Compact(context.Background(), messages, 1_000_000)

	if result.Level != LevelNone {
		t.Fatalf("expected LevelNone, got %s", result.Level)
	}
	if len(result.Messages) != len(messages) {
		t.Fatalf("expected unchanged length, got %d vs %d", len(result.Messages), len(messages))
	}
}

func TestCompactWarnTierDoesNotMutate(t *testing.T) {
	var reported Level
	c := New(Config{OnPressure: func(level Level, _ float64) { reported = level }})
	messages := longHistory(3)
	total := EstimateTotal(messages)

	// Pick a budget so utilization lands in [0.80, 0.85).
	maxTokens := int(float64(total) / 0.82)
	result := c.Compact(context.Background(), messages, maxTokens)

	if result.Level != LevelWarn {
		t.Fatalf("expected LevelWarn, got %s (utilization %f)", result.Level, result.Utilization)
	}
	if reported != LevelWarn {
		t.Fatalf("expected OnPressure called with warn, got %s", reported)
	}
	if len(result.Messages) != len(messages) {
		t.Fatalf("expected warn tier to leave messages untouched")
	}
}

func TestCompactAggressiveTierPreservesSystemAndRecent(t *testing.T) {
	c := New(Config{RecentTurns: 2})
	messages := longHistory(10)
	total := EstimateTotal(messages)
	maxTokens := int(float64(total) / 0.90)

	result := c.Compact(context.Background(), messages, maxTokens)
	if result.Level != LevelAggressive {
		t.Fatalf("expected LevelAggressive, got %s (utilization %f)", result.Level, result.Utilization)
	}
	if len(result.Messages) >= len(messages) {
		t.Fatalf("expected strictly shorter result, got %d vs %d", len(result.Messages), len(messages))
	}
	if result.Messages[0].Role != models.RoleSystem {
		t.Fatalf("expected system message preserved first, got %s", result.Messages[0].Role)
	}
	last := result.Messages[len(result.Messages)-1]
	if last.Role != models.RoleAssistant {
		t.Fatalf("expected last message to be the final assistant turn, got %s", last.Role)
	}
}

func TestCompactAggressiveTierNeverOrphansToolResult(t *testing.T) {
	c := New(Config{RecentTurns: 2})
	messages := []models.Message{
		makeMessage(models.RoleSystem, "sys"),
	}
	for i := 0; i < 20; i++ {
		messages = append(messages, makeMessage(models.RoleUser, strings.Repeat("word ", 100)))
		messages = append(messages, models.Message{Role: models.RoleAssistant, Content: strings.Repeat("word ", 100), ToolCalls: []models.ToolCall{{ID: "tc1", Name: "x"}}})
		messages = append(messages, models.Message{Role: models.RoleTool, Content: "result", ToolCallID: "tc1"})
	}

	total := EstimateTotal(messages)
	maxTokens := int(float64(total) / 0.90)
	result := c.Compact(context.Background(), messages, maxTokens)

	for i, m := range result.Messages {
		if m.Role == models.RoleTool {
			if i == 0 || result.Messages[i-1].Role != models.RoleAssistant {
				t.Fatalf("tool result at index %d is orphaned from its assistant tool call", i)
			}
		}
	}
}

type stubSummarizer struct {
	summary string
	err     error
}

func (s *stubSummarizer) Summarize(ctx context.Context, messages []models.Message) (string, error) {
	return s.summary, s.err
}

func TestCompactEmergencyTierSummarizesMiddleSpan(t *testing.T) {
	c := New(Config{RecentTurns: 2, Summarizer: &stubSummarizer{summary: "condensed history"}})
	messages := longHistory(15)
	total := EstimateTotal(messages)
	maxTokens := int(float64(total) / 0.97)

	result := c.Compact(context.Background(), messages, maxTokens)
	if result.Level != LevelEmergency {
		t.Fatalf("expected LevelEmergency, got %s (utilization %f)", result.Level, result.Utilization)
	}

	found := false
	for _, m := range result.Messages {
		if m.Content == "condensed history" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected synthetic summary message in result")
	}
	if len(result.Messages) >= len(messages) {
		t.Fatalf("expected strictly shorter result after summarization")
	}
}

func TestCompactEmergencyTierFailsOpenOnSummarizerError(t *testing.T) {
	c := New(Config{RecentTurns: 2, Summarizer: &stubSummarizer{err: errors.New("provider unavailable")}})
	messages := longHistory(15)
	total := EstimateTotal(messages)
	maxTokens := int(float64(total) / 0.97)

	result := c.Compact(context.Background(), messages, maxTokens)
	if result.Level != LevelEmergencyFailed {
		t.Fatalf("expected LevelEmergencyFailed, got %s", result.Level)
	}
	if len(result.Messages) != len(messages) {
		t.Fatalf("expected original list returned untouched on fail-open, got %d vs %d", len(result.Messages), len(messages))
	}
}

func TestCompactEmergencyTierFailsOpenWithNoSummarizer(t *testing.T) {
	c := New(Config{RecentTurns: 2})
	messages := longHistory(15)
	total := EstimateTotal(messages)
	maxTokens := int(float64(total) / 0.97)

	result := c.Compact(context.Background(), messages, maxTokens)
	if result.Level != LevelEmergencyFailed {
		t.Fatalf("expected LevelEmergencyFailed when no summarizer configured, got %s", result.Level)
	}
}

func TestMaxTokensForModelFallsBackToDefault(t *testing.T) {
	if got := MaxTokensForModel("unknown-model"); got != DefaultMaxTokens {
		t.Fatalf("expected default max tokens, got %d", got)
	}
	if got := MaxTokensForModel("claude-opus-4"); got != 200000 {
		t.Fatalf("expected known model ceiling, got %d", got)
	}
}
