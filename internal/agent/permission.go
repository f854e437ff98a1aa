package agent

import "context"

// PermissionMode controls the pre-tool-use hook's default disposition
// toward a tool call.
type PermissionMode string

const (
	// PermissionDefault prompts for every tool call.
	PermissionDefault PermissionMode = "default"
	// PermissionAcceptEdits allows read/write tools, prompts for the rest.
	PermissionAcceptEdits PermissionMode = "accept_edits"
	// PermissionPlan blocks every tool call; the worker returns a plan
	// instead of executing anything.
	PermissionPlan PermissionMode = "plan"
	// PermissionBypass allows every tool call unconditionally.
	PermissionBypass PermissionMode = "bypass"
	// PermissionDenyAll blocks every tool call.
	PermissionDenyAll PermissionMode = "deny_all"
)

// ApprovalHook is consulted whenever a tool call needs interactive
// confirmation. It returns true to allow the call. A nil hook makes any
// "prompt required" decision resolve to denied, since there is no UI to
// ask.
type ApprovalHook func(ctx context.Context, toolName string, args []byte) bool

// Policy evaluates the pre-tool-use hook for a permission mode.
type Policy struct {
	Mode PermissionMode

	// WriteTools names the tools considered mutating, consulted only by
	// accept_edits mode to decide which calls still need a prompt.
	WriteTools map[string]bool

	// Approve is the interactive confirmation hook. May be nil.
	Approve ApprovalHook
}

// Decide reports whether toolName may execute, and the block reason when
// it may not.
func (p Policy) Decide(ctx context.Context, toolName string, args []byte) (allowed bool, reason string) {
	switch p.Mode {
	case PermissionBypass:
		return true, ""
	case PermissionDenyAll, PermissionPlan:
		return false, "blocked_by_permission_policy:" + string(p.Mode)
	case PermissionAcceptEdits:
		if !p.WriteTools[toolName] {
			return true, ""
		}
		return p.prompt(ctx, toolName, args)
	default: // PermissionDefault and unrecognized modes prompt.
		return p.prompt(ctx, toolName, args)
	}
}

func (p Policy) prompt(ctx context.Context, toolName string, args []byte) (bool, string) {
	if p.Approve == nil {
		return false, "approval_required"
	}
	if p.Approve(ctx, toolName, args) {
		return true, ""
	}
	return false, "approval_denied"
}

// IsPlanOnly reports whether the policy forbids all tool execution and the
// worker should short-circuit straight to plan review.
func (p Policy) IsPlanOnly() bool {
	return p.Mode == PermissionPlan
}
