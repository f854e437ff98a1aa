package agent

import (
	"context"
	"sync"
	"time"

	"github.com/osa/runtime/pkg/models"
)

// dispatchToolCalls runs every tool call from a single LLM response,
// enforcing the permission policy as a pre-tool-use hook. Allowed calls run
// concurrently; results are returned in the original response order so the
// caller can append them to the message list deterministically.
func (w *Worker) dispatchToolCalls(ctx context.Context, policy Policy, calls []models.ToolCall) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		i, call := i, call
		allowed, reason := policy.Decide(ctx, call.Name, call.Input)

		w.publish(models.TopicToolCall, map[string]any{
			"phase": string(models.ToolCallPhaseStart),
			"name": call.Name,
			"args": string(call.Input),
		})

		if !allowed {
			results[i] = models.ToolResult{ToolCallID: call.ID, Content: reason, IsError: true}
			if w.deps.Metrics != nil {
				w.deps.Metrics.ToolExecutionCounter.WithLabelValues(call.Name, "error").Inc()
			}
			w.publish(models.TopicToolCall, map[string]any{
				"phase": string(models.ToolCallPhaseEnd),
				"name": call.Name,
				"duration_ms": int64(0),
				"success": false,
			})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			result, err := w.deps.Tools.Execute(ctx, call.Name, call.Input)
			if err != nil && result.Content == "" {
				result = models.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true}
			}
			result.ToolCallID = call.ID
			results[i] = result

			duration := time.Since(start)
			if w.deps.Metrics != nil {
				status := "success"
				if result.IsError {
					status = "error"
				}
				w.deps.Metrics.ToolExecutionDuration.WithLabelValues(call.Name).Observe(duration.Seconds())
				w.deps.Metrics.ToolExecutionCounter.WithLabelValues(call.Name, status).Inc()
			}

			w.publish(models.TopicToolCall, map[string]any{
				"phase": string(models.ToolCallPhaseEnd),
				"name": call.Name,
				"duration_ms": duration.Milliseconds(),
				"success": !result.IsError,
			})
		}()
	}

	wg.Wait()
	return results
}
