// Package sse implements the SSE Bridge (C12): a hand-rolled
// text/event-stream writer over the Event Bus, scoped to one session id.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/osa/runtime/internal/eventbus"
	"github.com/osa/runtime/internal/observability"
	"github.com/osa/runtime/pkg/models"
)

// KeepaliveInterval is how often a `: keepalive` comment is written while
// idle.
const KeepaliveInterval = 30 * time.Second

// Topics lists every Event Bus topic the bridge relays onto the stream.
var Topics = []models.Topic{
	models.TopicLLMRequest,
	models.TopicLLMResponse,
	models.TopicToolCall,
	models.TopicAgentResponse,
	models.TopicSystemEvent,
}

// Bridge relays Event Bus traffic for one session as Server-Sent Events.
type Bridge struct {
	bus    *eventbus.Bus
	logger *observability.Logger
}

// New creates a Bridge over bus.
func New(bus *eventbus.Bus, logger *observability.Logger) *Bridge {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Bridge{bus: bus, logger: logger}
}

// Serve streams events for sessionID to w until the request context is
// cancelled or the client disconnects. It writes the response headers and
// an initial `connected` frame before blocking.
func (b *Bridge) Serve(w http.ResponseWriter, r *http.Request, sessionID string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	events := make(chan models.Event, 64)
	var handles []eventbus.SubscriptionHandle
	for _, topic := range Topics {
		topic := topic
		handle := b.bus.Subscribe(topic, nil, func(ev models.Event) {
			if ev.SessionID != "" && ev.SessionID != sessionID {
				return
			}
			select {
			case events <- ev:
			default:
				// Slow client: drop rather than block the bus worker.
			}
		})
		handles = append(handles, handle)
	}
	defer func() {
		for _, h := range handles {
			b.bus.Unsubscribe(h)
		}
	}()

	if err := writeFrame(w, "connected", map[string]any{
		"type": "connected",
		"session_id": sessionID,
	}); err != nil {
		return err
	}
	flusher.Flush()

	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if err := writeFrame(w, eventName(ev), framePayload(ev, sessionID)); err != nil {
				b.logger.Warn(ctx, "sse client write failed, closing stream", "session_id", sessionID, "error", err)
				return err
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				b.logger.Info(ctx, "sse client disconnected", "session_id", sessionID)
				return err
			}
			flusher.Flush()
		}
	}
}

// eventName maps a bus Topic (and, for tool_call, its phase) onto the SSE
// event name sent to the client.
func eventName(ev models.Event) string {
	if ev.Topic == models.TopicToolCall {
		if phase, _ := ev.Payload["phase"].(string); phase == string(models.ToolCallPhaseEnd) {
			return "tool_result"
		}
		return "tool_call"
	}
	return string(ev.Topic)
}

func framePayload(ev models.Event, sessionID string) map[string]any {
	payload := make(map[string]any, len(ev.Payload)+2)
	for k, v := range ev.Payload {
		payload[k] = v
	}
	payload["type"] = eventName(ev)
	payload["session_id"] = sessionID
	return payload
}

func writeFrame(w http.ResponseWriter, event string, data map[string]any) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode sse frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, encoded); err != nil {
		return err
	}
	return nil
}
