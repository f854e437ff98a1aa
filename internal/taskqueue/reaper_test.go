package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/osa/runtime/internal/observability"
)

func TestReaperObservesQueueDepthPerAgent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _ = store.Enqueue(ctx, "t1", "agent-a", nil, EnqueueOptions{})
	_, _ = store.Enqueue(ctx, "t2", "agent-a", nil, EnqueueOptions{})
	_, _ = store.Enqueue(ctx, "t3", "agent-b", nil, EnqueueOptions{})

	metrics := observability.NewMetrics()
	reaper := NewReaper(store, time.Minute, nil, metrics)
	reaper.sweep(ctx)

	if got := testutil.ToFloat64(metrics.TaskQueueDepth.WithLabelValues("agent-a")); got != 2 {
		t.Fatalf("expected agent-a depth 2, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.TaskQueueDepth.WithLabelValues("agent-b")); got != 1 {
		t.Fatalf("expected agent-b depth 1, got %v", got)
	}
}

func TestReaperSweepTolerantOfNilMetrics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, _ = store.Enqueue(ctx, "t1", "agent-a", nil, EnqueueOptions{})

	reaper := NewReaper(store, time.Minute, nil, nil)
	reaper.sweep(ctx) // must not panic with nil metrics
}
