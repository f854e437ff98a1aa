// Package contextasm implements the Context Assembler (C6): it composes the
// system prompt from an ordered set of optional blocks, without ever
// mutating the caller's message list.
package contextasm

import (
	"fmt"
	"strings"
	"time"

	"github.com/osa/runtime/pkg/models"
)

// Machine is a named skill group contributing a prompt fragment.
type Machine struct {
	Name    string
	Prompt  string
	Enabled bool
}

// BootstrapFile is one identity/soul/profile file read from the configured
// bootstrap directory.
type BootstrapFile struct {
	Name    string
	Content string
}

// Runtime carries the per-call values for block 10.
type Runtime struct {
	Timestamp time.Time
	ChannelID string
	SessionID string
}

// Input collects every optional block the assembler may render. Zero-value
// (empty string / nil slice) fields are elided entirely — the assembler
// never renders an empty heading.
type Input struct {
	Identity             string
	BootstrapFiles       []BootstrapFile
	Memory               string
	Machines             []Machine
	ConnectedOSTemplates []string
	Signal               *models.Signal
	ToolsDoc             string
	CommunicationProfile string
	MemoryBulletin       string
	Runtime              Runtime
}

// Assembler composes system prompts from an Input.
type Assembler struct{}

// New creates an Assembler. It is stateless; all inputs are supplied
// per-call.
func New() *Assembler {
	return &Assembler{}
}

// Assemble renders the ordered block list into a single system prompt
// string, in the configured numbered block order.
func (a *Assembler) Assemble(in Input) string {
	var blocks []string

	if s := strings.TrimSpace(in.Identity); s != "" {
		blocks = append(blocks, s)
	}

	for _, f := range in.BootstrapFiles {
		if c := strings.TrimSpace(f.Content); c != "" {
			blocks = append(blocks, fmt.Sprintf("## %s\n%s", f.Name, c))
		}
	}

	if s := strings.TrimSpace(in.Memory); s != "" {
		blocks = append(blocks, "## Memory\n"+s)
	}

	for _, m := range in.Machines {
		if !m.Enabled {
			continue
		}
		if p := strings.TrimSpace(m.Prompt); p != "" {
			blocks = append(blocks, fmt.Sprintf("## Machine: %s\n%s", m.Name, p))
		}
	}

	if len(in.ConnectedOSTemplates) > 0 {
		var b strings.Builder
		b.WriteString("## Project Structure\n")
		for _, t := range in.ConnectedOSTemplates {
			if strings.TrimSpace(t) == "" {
				continue
			}
			b.WriteString(t)
			b.WriteString("\n")
		}
		if rendered := strings.TrimSpace(b.String()); rendered != "## Project Structure" {
			blocks = append(blocks, b.String())
		}
	}

	if in.Signal != nil {
		blocks = append(blocks, renderSignalBlock(*in.Signal))
	}

	if s := strings.TrimSpace(in.ToolsDoc); s != "" {
		blocks = append(blocks, "## Available Tools\n"+s)
	}

	if s := strings.TrimSpace(in.CommunicationProfile); s != "" {
		blocks = append(blocks, "## Communication Profile\n"+s)
	}

	if s := strings.TrimSpace(in.MemoryBulletin); s != "" {
		blocks = append(blocks, "## Memory Bulletin\n"+s)
	}

	blocks = append(blocks, renderRuntimeBlock(in.Runtime))

	return strings.Join(blocks, "\n\n")
}

// AssembleMessages prepends the composed system prompt to a copy of
// messages, leaving the caller's slice untouched.
func (a *Assembler) AssembleMessages(in Input, messages []models.Message) []models.Message {
	system := a.Assemble(in)
	out := make([]models.Message, 0, len(messages)+1)
	out = append(out, models.Message{Role: models.RoleSystem, Content: system})
	out = append(out, messages...)
	return out
}

func renderSignalBlock(sig models.Signal) string {
	return fmt.Sprintf("## Current Signal\nmode=%s genre=%s type=%s format=%s weight=%.2f",
		sig.Mode, sig.Genre, sig.Type, sig.Format, sig.Weight)
}

func renderRuntimeBlock(rt Runtime) string {
	ts := rt.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return fmt.Sprintf("## Runtime\ntimestamp=%s channel=%s session=%s",
		ts.Format(time.RFC3339), rt.ChannelID, rt.SessionID)
}
