// Package models provides the domain types shared across the OSA runtime:
// signals, messages, sessions, tool definitions, events, queued tasks and
// alerts.
package models

import (
	"encoding/json"
	"time"
	"unicode/utf8"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is an LLM's request to invoke a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ThinkingBlock captures an extended-thinking segment returned by a provider.
type ThinkingBlock struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

// Attachment describes opaque channel-supplied media; the core never
// interprets its bytes, only carries it through the message list.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is one turn in a Session's conversation.
type Message struct {
	Role           Role             `json:"role"`
	Content        string           `json:"content"`
	ToolCalls      []ToolCall       `json:"tool_calls,omitempty"`
	ToolCallID     string           `json:"tool_call_id,omitempty"`
	ThinkingBlocks []ThinkingBlock  `json:"thinking_blocks,omitempty"`
	Attachments    []Attachment     `json:"attachments,omitempty"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
	InsertedAt     time.Time        `json:"inserted_at,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at,omitempty"`
}

// Sanitize replaces invalid UTF-8 byte sequences in Content with the
// replacement character rather than rejecting the message: losing a
// message is worse than losing bytes.
func (m *Message) Sanitize() {
	if !utf8.ValidString(m.Content) {
		m.Content = sanitizeUTF8(m.Content)
	}
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	buf := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				buf = append(buf, '�')
				continue
			}
		}
		buf = append(buf, r)
	}
	return string(buf)
}

// Session is the persistent per-id conversation state owned exclusively by
// its Session Worker.
type Session struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id,omitempty"`
	WorkspaceID   string    `json:"workspace_id,omitempty"`
	Channel       string    `json:"channel"`
	Messages      []Message `json:"messages"`
	SignalHistory []Signal  `json:"signal_history,omitempty"`
	Provider      string    `json:"provider,omitempty"`
	Model         string    `json:"model,omitempty"`
	SkipPlanNext  bool      `json:"skip_plan_next,omitempty"`
	BudgetUSD     float64   `json:"budget_usd,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
