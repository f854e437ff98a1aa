// Package eventbus implements the in-process typed pub/sub router (C1):
// non-blocking publish, bounded per-subscriber delivery queues with
// drop-oldest backpressure, and handlers that are removed from the
// subscriber table if they panic.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/osa/runtime/internal/observability"
	"github.com/osa/runtime/pkg/models"
)

// Handler processes a delivered event. A Handler that panics is treated as
// "raised": it is logged and its subscription is removed.
type Handler func(models.Event)

// Filter decides whether a subscriber wants a given event's payload.
// A nil Filter accepts everything.
type Filter func(payload map[string]any) bool

// SubscriptionHandle identifies a live subscription for Unsubscribe.
type SubscriptionHandle string

// Config tunes the bus's per-subscriber queue depth.
type Config struct {
	// QueueDepth is the bounded delivery queue size per subscriber.
	// Default: 256.
	QueueDepth int
}

type subscriber struct {
	id      SubscriptionHandle
	topic   models.Topic
	filter  Filter
	handler Handler
	queue   *boundedQueue
	cancel  context.CancelFunc
}

// Bus is the Event Bus: publish is non-blocking and fire-and-forget;
// delivery to each live subscriber is at-most-once and ordered per
// publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[models.Topic]map[SubscriptionHandle]*subscriber
	queueDepth  int
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// New creates an empty Bus.
func New(cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Bus {
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 256
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Bus{
		subscribers: make(map[models.Topic]map[SubscriptionHandle]*subscriber),
		queueDepth:  depth,
		logger:      logger,
		metrics:     metrics,
	}
}

// Subscribe registers handler on topic, optionally filtered by payload, and
// returns a handle for Unsubscribe. The handler runs on a worker goroutine
// independent of publishers.
func (b *Bus) Subscribe(topic models.Topic, filter Filter, handler Handler) SubscriptionHandle {
	handle := SubscriptionHandle(uuid.NewString())
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscriber{
		id:      handle,
		topic:   topic,
		filter:  filter,
		handler: handler,
		queue:   newBoundedQueue(b.queueDepth),
		cancel:  cancel,
	}

	b.mu.Lock()
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[SubscriptionHandle]*subscriber)
	}
	b.subscribers[topic][handle] = sub
	b.mu.Unlock()

	go b.deliverLoop(ctx, sub)
	return handle
}

// Unsubscribe removes a subscription. Already-queued events are discarded.
func (b *Bus) Unsubscribe(handle SubscriptionHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, subs := range b.subscribers {
		if sub, ok := subs[handle]; ok {
			sub.cancel()
			sub.queue.close()
			delete(subs, handle)
			if len(subs) == 0 {
				delete(b.subscribers, topic)
			}
			return
		}
	}
}

// Publish fans payload out to every live subscriber of topic whose filter
// accepts it. It never blocks on a slow subscriber: delivery happens
// through that subscriber's bounded queue.
func (b *Bus) Publish(topic models.Topic, sessionID string, payload map[string]any) {
	ev := models.Event{
		Topic:     topic,
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subscribers[topic]))
	for _, sub := range b.subscribers[topic] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.filter != nil && !sub.filter(payload) {
			continue
		}
		before := sub.queue.droppedCount()
		sub.queue.push(ev)
		if sub.queue.droppedCount() > before && b.metrics != nil {
			b.metrics.EventBusDropped.WithLabelValues(string(topic)).Inc()
		}
	}
}

func (b *Bus) deliverLoop(ctx context.Context, sub *subscriber) {
	for {
		for {
			ev, ok := sub.queue.pop()
			if !ok {
				break
			}
			b.invoke(sub, ev)
		}
		select {
		case <-ctx.Done():
			return
		case <-sub.queue.notify:
		}
	}
}

func (b *Bus) invoke(sub *subscriber, ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(context.Background(), "event handler panicked; removing subscription",
				"topic", string(sub.topic), "recover", r)
			b.Unsubscribe(sub.id)
		}
	}()
	sub.handler(ev)
}

// DroppedCount returns the number of events dropped for a subscription due
// to queue overflow, for tests and diagnostics.
func (b *Bus) DroppedCount(handle SubscriptionHandle) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, subs := range b.subscribers {
		if sub, ok := subs[handle]; ok {
			return sub.queue.droppedCount()
		}
	}
	return 0
}
