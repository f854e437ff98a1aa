// Package taskqueue implements the Durable Task Queue (C9): a persisted
// work queue with atomic single-lease semantics, bounded retry, and a
// reaper that reclaims expired leases.
package taskqueue

import (
	"context"
	"time"

	"github.com/osa/runtime/pkg/models"
)

// EnqueueOptions configures a new task.
type EnqueueOptions struct {
	MaxAttempts int
}

// ListFilter narrows List results. Zero-value fields are unfiltered.
type ListFilter struct {
	AgentID string
	Status  models.TaskStatus
}

// Store is the durable task queue contract, backed by either the
// embedded sqlite store or the optional Postgres store.
type Store interface {
	Enqueue(ctx context.Context, taskID, agentID string, payload []byte, opts EnqueueOptions) (models.QueuedTask, error)

	// Lease selects the oldest pending task for agentID, atomically
	// transitions it to leased with leased_until = now + duration, and
	// returns it. Returns ok=false when no pending task is available.
	Lease(ctx context.Context, agentID string, duration time.Duration) (task models.QueuedTask, ok bool, err error)

	Complete(ctx context.Context, taskID string, result []byte) error
	Fail(ctx context.Context, taskID string, errMsg string) error
	Get(ctx context.Context, taskID string) (models.QueuedTask, bool, error)
	List(ctx context.Context, filter ListFilter) ([]models.QueuedTask, error)

	// ReapExpired transitions every leased task whose leased_until has
	// passed back to pending, without incrementing attempts. It returns
	// the number of tasks reaped.
	ReapExpired(ctx context.Context, now time.Time) (int, error)

	Close() error
}

// DefaultMaxAttempts is used when EnqueueOptions.MaxAttempts is unset.
const DefaultMaxAttempts = 5

// DefaultReapInterval is the background sweep's fixed interval.
const DefaultReapInterval = 60 * time.Second
