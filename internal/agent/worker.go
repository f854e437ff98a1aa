// Package agent implements the Session Worker / Agent Loop (C8): one
// ReAct state machine per session, mediating between the Signal Classifier,
// Context Assembler, Context Compactor, Provider Registry, and Tool
// Registry.
package agent

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/osa/runtime/internal/compaction"
	"github.com/osa/runtime/internal/contextasm"
	"github.com/osa/runtime/internal/providers"
	"github.com/osa/runtime/pkg/models"
)

// Worker owns one session's message history and runs process() calls
// serially against it. It satisfies sessionreg.Worker.
type Worker struct {
	id   string
	deps Dependencies
	cfg  Config

	run      sync.Mutex // held for the whole of one Process call
	mu       sync.Mutex
	history  []models.Message
	provider string
	model    string

	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewWorker creates a Worker for sessionID. The returned Worker must be
// registered with the Session Registry by the caller.
func NewWorker(sessionID string, deps Dependencies, cfg Config) *Worker {
	return &Worker{
		id: sessionID,
		deps: deps,
		cfg: sanitizeConfig(cfg),
		provider: cfg.DefaultProvider,
		model: cfg.DefaultModel,
		done: make(chan struct{}),
	}
}

// Done satisfies sessionreg.Worker — it closes when the worker is
// terminated via Close.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Close terminates the worker, cancelling any in-flight process call and
// marking it for removal from the Session Registry.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()
	close(w.done)
}

// Cancel aborts the current in-flight Process call, if any, without
// terminating the worker itself.
func (w *Worker) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}

// Process is the ingress contract: classify, assemble, run the
// ReAct loop, and return exactly one terminal Result.
func (w *Worker) Process(ctx context.Context, text string, opts Options) Result {
	w.run.Lock()
	defer w.run.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return Result{Status: StatusError, Reason: "worker_closed"}
	}
	runCtx, cancel := context.WithCancel(ctx)
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	w.cancel = cancel
	w.mu.Unlock()
	defer cancel()

	providerName := opts.Provider
	if providerName == "" {
		providerName = w.provider
	}
	model := opts.Model
	if model == "" {
		model = w.model
	}

	// CLASSIFYING
	classification := w.deps.Classifier.Classify(runCtx, text, opts.Channel)
	if w.deps.Metrics != nil {
		w.deps.Metrics.SignalsClassified.WithLabelValues(string(classification.Signal.Mode), strconv.FormatBool(classification.Filtered)).Inc()
	}
	if classification.Filtered {
		w.publish(models.TopicSystemEvent, map[string]any{"event": "filtered", "weight": classification.Signal.Weight})
		return Result{Status: StatusFiltered, Signal: classification.Signal}
	}

	policy := w.cfg.Policy
	if opts.PermissionMode != "" {
		policy.Mode = opts.PermissionMode
	}
	// skip_plan lets the caller re-invoke a plan-mode call to actually
	// execute; for that single call, treat plan as the default prompting
	// mode rather than a hard block.
	if policy.Mode == PermissionPlan && opts.SkipPlan {
		policy.Mode = PermissionDefault
	}

	userMsg := models.Message{Role: models.RoleUser, Content: text}
	userMsg.Sanitize()

	w.mu.Lock()
	w.history = append(w.history, userMsg)
	messages := append([]models.Message(nil), w.history...)
	w.mu.Unlock()

	caps, _ := w.deps.Providers.Capabilities(providerName, model)
	tools := w.deps.Tools.FilterForCapabilities(caps, w.cfg.ModelSizeBytes)
	tools = mergeExtraTools(tools, opts.ExtraTools)
	tools = append(tools, providers.PlanToolDefinition())

	maxTokens := compaction.MaxTokensForModel(model)

	iteration := 0
	var skillsUsed []string
	seenSkills := map[string]bool{}
	for {
		if err := runCtx.Err(); err != nil {
			return Result{Status: StatusCancelled, Reason: err.Error()}
		}

		compacted := w.deps.Compactor.Compact(runCtx, messages, maxTokens)
		messages = compacted.Messages
		if compacted.Level != compaction.LevelNone {
			w.publish(models.TopicContextPressure, map[string]any{
				"level": string(compacted.Level),
				"utilization": compacted.Utilization,
			})
			if w.deps.Metrics != nil {
				w.deps.Metrics.CompactionRuns.WithLabelValues(string(compacted.Level)).Inc()
			}
		}

		system := w.assembleSystem(classification.Signal, opts)

		w.publish(models.TopicLLMRequest, map[string]any{"iteration": iteration})
		start := time.Now()
		resp, err := w.deps.Providers.Chat(runCtx, providerName, messages, providers.ChatOptions{
			Model: model,
			Tools: tools,
			System: system,
		})
		duration := time.Since(start)
		w.publish(models.TopicLLMResponse, map[string]any{
			"duration_ms": duration.Milliseconds(),
			"prompt_tokens": resp.PromptTokens,
			"completion_tokens": resp.CompletionTokens,
		})
		if w.deps.Metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			w.deps.Metrics.LLMRequestDuration.WithLabelValues(providerName, model).Observe(duration.Seconds())
			w.deps.Metrics.LLMRequestCounter.WithLabelValues(providerName, model, status).Inc()
		}
		if err != nil {
			w.commitHistory(messages)
			return Result{Status: StatusError, Reason: err.Error(), IterationCount: iteration, SkillsUsed: skillsUsed}
		}

		if policy.IsPlanOnly() || resp.IsPlan {
			w.commitHistory(messages)
			w.publish(models.TopicAgentResponse, map[string]any{"response": resp.Text, "signal": classification.Signal})
			return Result{Status: StatusPlan, Response: resp.Text, Signal: classification.Signal, IterationCount: iteration, SkillsUsed: skillsUsed}
		}

		assistantMsg := models.Message{
			Role: models.RoleAssistant,
			Content: resp.Text,
			ToolCalls: resp.ToolCalls,
			ThinkingBlocks: resp.ThinkingBlocks,
		}
		messages = append(messages, assistantMsg)

		if len(resp.ToolCalls) == 0 {
			w.commitHistory(messages)
			w.publish(models.TopicAgentResponse, map[string]any{"response": resp.Text, "signal": classification.Signal})
			return Result{Status: StatusOK, Response: resp.Text, Signal: classification.Signal, IterationCount: iteration, SkillsUsed: skillsUsed}
		}

		for _, call := range resp.ToolCalls {
			if !seenSkills[call.Name] {
				seenSkills[call.Name] = true
				skillsUsed = append(skillsUsed, call.Name)
			}
		}

		results := w.dispatchToolCalls(runCtx, policy, resp.ToolCalls)
		for _, tr := range results {
			messages = append(messages, models.Message{
				Role: models.RoleTool,
				Content: tr.Content,
				ToolCallID: tr.ToolCallID,
			})
		}

		iteration++
		if iteration >= w.cfg.MaxIterations {
			w.commitHistory(messages)
			w.publish(models.TopicAgentResponse, map[string]any{"response": resp.Text, "signal": classification.Signal})
			return Result{Status: StatusOK, Response: resp.Text, Signal: classification.Signal, Reason: "max_iterations_reached", IterationCount: iteration, SkillsUsed: skillsUsed}
		}
	}
}

func (w *Worker) commitHistory(messages []models.Message) {
	w.mu.Lock()
	w.history = messages
	w.mu.Unlock()
}

func (w *Worker) assembleSystem(sig models.Signal, opts Options) string {
	return w.deps.Assembler.Assemble(contextasm.Input{
		Identity: w.cfg.Identity,
		Signal: &sig,
		ToolsDoc: w.deps.Tools.Describe(),
		Runtime: contextasm.Runtime{
			Timestamp: time.Now().UTC(),
			ChannelID: opts.Channel,
			SessionID: w.id,
		},
	})
}

func (w *Worker) publish(topic models.Topic, payload map[string]any) {
	if w.deps.Bus == nil {
		return
	}
	w.deps.Bus.Publish(topic, w.id, payload)
}

func mergeExtraTools(base, extra []models.ToolDefinition) []models.ToolDefinition {
	if len(extra) == 0 {
		return base
	}
	byName := make(map[string]models.ToolDefinition, len(base)+len(extra))
	order := make([]string, 0, len(base)+len(extra))
	for _, t := range base {
		byName[t.Name] = t
		order = append(order, t.Name)
	}
	for _, t := range extra {
		if _, exists := byName[t.Name]; !exists {
			order = append(order, t.Name)
		}
		byName[t.Name] = t
	}
	merged := make([]models.ToolDefinition, 0, len(order))
	for _, name := range order {
		merged = append(merged, byName[name])
	}
	return merged
}
