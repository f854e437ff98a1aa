package sessionreg

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/osa/runtime/internal/observability"
)

type fakeWorker struct {
	done chan struct{}
}

func newFakeWorker() *fakeWorker {
	return &fakeWorker{done: make(chan struct{})}
}

func (w *fakeWorker) Done() <-chan struct{} { return w.done }

func TestRegisterUniqueRejectsDuplicate(t *testing.T) {
	r := New(nil)
	w1 := newFakeWorker()
	if err := r.RegisterUnique("s1", w1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w2 := newFakeWorker()
	if err := r.RegisterUnique("s1", w2); err != ErrAlreadyRegistered {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestEntryRemovedOnTermination(t *testing.T) {
	r := New(nil)
	w := newFakeWorker()
	_ = r.RegisterUnique("s1", w)
	close(w.done)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := r.Lookup("s1"); !ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("entry was not removed after worker termination")
}

func TestActiveSessionsGaugeTracksRegisterAndTermination(t *testing.T) {
	metrics := observability.NewMetrics()
	r := New(metrics)

	w := newFakeWorker()
	_ = r.RegisterUnique("s1", w)
	if got := testutil.ToFloat64(metrics.ActiveSessions); got != 1 {
		t.Fatalf("expected active sessions 1 after register, got %v", got)
	}

	close(w.done)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(metrics.ActiveSessions) == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected active sessions gauge to return to 0 after termination")
}

func TestLookupAndList(t *testing.T) {
	r := New(nil)
	_ = r.RegisterUnique("a", newFakeWorker())
	_ = r.RegisterUnique("b", newFakeWorker())

	if _, ok := r.Lookup("a"); !ok {
		t.Fatal("expected to find a")
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Fatal("expected missing to be absent")
	}
	if got := r.Count(); got != 2 {
		t.Fatalf("expected count 2, got %d", got)
	}
}
