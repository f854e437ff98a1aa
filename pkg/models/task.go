package models

import (
	"encoding/json"
	"time"
)

// TaskStatus is the lifecycle state of a QueuedTask.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskLeased    TaskStatus = "leased"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// QueuedTask is a unit of work dispatched through the Durable Task Queue
// (C9) under an at-most-one-lease rule. See internal/taskqueue.
type QueuedTask struct {
	TaskID      string          `json:"task_id"`
	AgentID     string          `json:"agent_id"`
	Payload     []byte          `json:"payload"`
	Status      TaskStatus      `json:"status"`
	LeasedUntil *time.Time      `json:"leased_until,omitempty"`
	LeasedBy    string          `json:"leased_by,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// IsActivelyLeased reports whether the task currently holds a live lease,
// per the invariant: leased iff LeasedUntil is in the future and LeasedBy
// is non-empty.
func (t *QueuedTask) IsActivelyLeased(now time.Time) bool {
	return t.Status == TaskLeased && t.LeasedBy != "" && t.LeasedUntil != nil && t.LeasedUntil.After(now)
}
