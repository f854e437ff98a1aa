package taskqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/osa/runtime/pkg/models"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEnqueueThenLeaseReturnsTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, "t1", "agent-a", []byte(`{"x":1}`), EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok, err := store.Lease(ctx, "agent-a", time.Minute)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if !ok {
		t.Fatal("expected a task to be leased")
	}
	if task.TaskID != "t1" || task.Status != models.TaskLeased {
		t.Fatalf("unexpected leased task: %+v", task)
	}
}

func TestLeaseSelectsOldestPendingFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _ = store.Enqueue(ctx, "first", "agent-a", nil, EnqueueOptions{})
	time.Sleep(5 * time.Millisecond)
	_, _ = store.Enqueue(ctx, "second", "agent-a", nil, EnqueueOptions{})

	task, ok, err := store.Lease(ctx, "agent-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("lease failed: ok=%v err=%v", ok, err)
	}
	if task.TaskID != "first" {
		t.Fatalf("expected oldest task leased first, got %s", task.TaskID)
	}
}

func TestConcurrentLeasesReturnDistinctTasks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _ = store.Enqueue(ctx, "t1", "agent-a", nil, EnqueueOptions{})
	_, _ = store.Enqueue(ctx, "t2", "agent-a", nil, EnqueueOptions{})

	var wg sync.WaitGroup
	results := make(chan string, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, ok, err := store.Lease(ctx, "agent-a", time.Minute)
			if err != nil {
				t.Errorf("lease error: %v", err)
				return
			}
			if ok {
				results <- task.TaskID
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for id := range results {
		if seen[id] {
			t.Fatalf("expected distinct tasks, got duplicate %s", id)
		}
		seen[id] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expected both tasks leased exactly once, got %d", len(seen))
	}
}

func TestFailRevertsToPendingUntilMaxAttempts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _ = store.Enqueue(ctx, "t1", "agent-a", nil, EnqueueOptions{MaxAttempts: 2})
	task, _, _ := store.Lease(ctx, "agent-a", time.Minute)

	if err := store.Fail(ctx, task.TaskID, "transient error"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	got, _, _ := store.Get(ctx, task.TaskID)
	if got.Status != models.TaskPending {
		t.Fatalf("expected reverted to pending after first failure, got %s", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", got.Attempts)
	}

	task2, ok, _ := store.Lease(ctx, "agent-a", time.Minute)
	if !ok {
		t.Fatal("expected task re-leasable after revert")
	}
	if err := store.Fail(ctx, task2.TaskID, "transient error again"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	got2, _, _ := store.Get(ctx, task.TaskID)
	if got2.Status != models.TaskFailed {
		t.Fatalf("expected terminal failed after max attempts, got %s", got2.Status)
	}
}

func TestCompleteSetsResultAndStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _ = store.Enqueue(ctx, "t1", "agent-a", nil, EnqueueOptions{})
	task, _, _ := store.Lease(ctx, "agent-a", time.Minute)

	if err := store.Complete(ctx, task.TaskID, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, ok, _ := store.Get(ctx, task.TaskID)
	if !ok || got.Status != models.TaskCompleted {
		t.Fatalf("expected completed task, got %+v", got)
	}
	if string(got.Result) != `{"ok":true}` {
		t.Fatalf("expected result stored, got %s", got.Result)
	}
}

func TestReapExpiredRevertsWithoutIncrementingAttempts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _ = store.Enqueue(ctx, "t1", "agent-a", nil, EnqueueOptions{})
	task, _, _ := store.Lease(ctx, "agent-a", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	reaped, err := store.ReapExpired(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if reaped != 1 {
		t.Fatalf("expected 1 reaped task, got %d", reaped)
	}

	got, _, _ := store.Get(ctx, task.TaskID)
	if got.Status != models.TaskPending {
		t.Fatalf("expected pending after reap, got %s", got.Status)
	}
	if got.Attempts != 0 {
		t.Fatalf("expected attempts untouched by reap, got %d", got.Attempts)
	}
}

func TestListFiltersByAgentAndStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _ = store.Enqueue(ctx, "t1", "agent-a", nil, EnqueueOptions{})
	_, _ = store.Enqueue(ctx, "t2", "agent-b", nil, EnqueueOptions{})
	_, _, _ = store.Lease(ctx, "agent-a", time.Minute)

	pendingB, err := store.List(ctx, ListFilter{AgentID: "agent-b", Status: models.TaskPending})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pendingB) != 1 || pendingB[0].TaskID != "t2" {
		t.Fatalf("expected only t2, got %+v", pendingB)
	}

	leasedA, err := store.List(ctx, ListFilter{AgentID: "agent-a", Status: models.TaskLeased})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(leasedA) != 1 || leasedA[0].TaskID != "t1" {
		t.Fatalf("expected only t1, got %+v", leasedA)
	}
}
