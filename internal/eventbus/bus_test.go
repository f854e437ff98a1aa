package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/osa/runtime/pkg/models"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestPublishDeliversAtMostOncePerLiveSubscriber(t *testing.T) {
	b := New(Config{}, nil, nil)
	var mu sync.Mutex
	var received []string

	b.Subscribe(models.TopicLLMRequest, nil, func(ev models.Event) {
		mu.Lock()
		received = append(received, ev.SessionID)
		mu.Unlock()
	})

	b.Publish(models.TopicLLMRequest, "s1", map[string]any{"iteration": 0})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	if received[0] != "s1" {
		t.Fatalf("expected s1, got %v", received)
	}
	mu.Unlock()
}

func TestFilterBySessionID(t *testing.T) {
	b := New(Config{}, nil, nil)
	var mu sync.Mutex
	var count int

	b.Subscribe(models.TopicAgentResponse, func(payload map[string]any) bool {
		return payload["session_id"] == "target"
	}, func(ev models.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.Publish(models.TopicAgentResponse, "other", map[string]any{"session_id": "other"})
	b.Publish(models.TopicAgentResponse, "target", map[string]any{"session_id": "target"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})
}

func TestOverflowDropsOldest(t *testing.T) {
	b := New(Config{QueueDepth: 2}, nil, nil)
	block := make(chan struct{})
	started := make(chan struct{}, 1)

	handle := b.Subscribe(models.TopicSystemEvent, nil, func(ev models.Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
	})

	// First publish is picked up immediately by the handler goroutine and
	// blocks there; the next three queue up and only 2 fit.
	for i := 0; i < 4; i++ {
		b.Publish(models.TopicSystemEvent, "", map[string]any{"n": i})
	}
	<-started
	close(block)

	waitFor(t, func() bool {
		return b.DroppedCount(handle) > 0
	})
}

func TestHandlerPanicRemovesSubscription(t *testing.T) {
	b := New(Config{}, nil, nil)
	handle := b.Subscribe(models.TopicToolCall, nil, func(ev models.Event) {
		panic("boom")
	})

	b.Publish(models.TopicToolCall, "", map[string]any{"phase": "start"})

	waitFor(t, func() bool {
		b.mu.RLock()
		defer b.mu.RUnlock()
		_, ok := b.subscribers[models.TopicToolCall][handle]
		return !ok
	})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(Config{}, nil, nil)
	var mu sync.Mutex
	count := 0
	handle := b.Subscribe(models.TopicTaskEnqueued, nil, func(ev models.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	b.Unsubscribe(handle)
	b.Publish(models.TopicTaskEnqueued, "", nil)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("expected no delivery after unsubscribe, got %d", count)
	}
}
