package taskqueue

import (
	"context"
	"time"

	"github.com/osa/runtime/internal/observability"
	"github.com/osa/runtime/pkg/models"
)

// Reaper periodically reclaims expired leases.
type Reaper struct {
	store    Store
	interval time.Duration
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewReaper creates a Reaper with the default 60s interval when interval
// is zero.
func NewReaper(store Store, interval time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Reaper{store: store, interval: interval, logger: logger, metrics: metrics}
}

// Run blocks, sweeping at the configured interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	reaped, err := r.store.ReapExpired(ctx, time.Now().UTC())
	if err != nil {
		r.logger.Error(ctx, "task lease reap failed", "error", err)
		return
	}
	if reaped > 0 {
		r.logger.Info(ctx, "reaped expired task leases", "count", reaped)
		if r.metrics != nil {
			r.metrics.TaskLeaseReaped.Add(float64(reaped))
		}
	}
	r.observeQueueDepth(ctx)
}

// observeQueueDepth sets the TaskQueueDepth gauge from the current count of
// pending tasks per agent, piggybacking on the reaper's existing tick.
func (r *Reaper) observeQueueDepth(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	pending, err := r.store.List(ctx, ListFilter{Status: models.TaskPending})
	if err != nil {
		r.logger.Error(ctx, "list pending tasks for queue depth", "error", err)
		return
	}
	depth := make(map[string]int, len(pending))
	for _, task := range pending {
		depth[task.AgentID]++
	}
	r.metrics.TaskQueueDepth.Reset()
	for agentID, count := range depth {
		r.metrics.TaskQueueDepth.WithLabelValues(agentID).Set(float64(count))
	}
}
