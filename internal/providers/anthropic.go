package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/osa/runtime/pkg/models"
)

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey string
	BaseURL string
	DefaultModel string
	MaxRetries int
	RetryDelay time.Duration
	// There is no tool-schema size gate here: Anthropic's hosted models are
	// always tool-capable, so Capabilities reports a MinToolModelSize of 0.
}

// AnthropicProvider implements Provider against Anthropic's Messages API.
type AnthropicProvider struct {
	BaseProvider
	client anthropic.Client
}

// NewAnthropicProvider builds a provider from config.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicProvider{
		BaseProvider: NewBaseProvider("anthropic", cfg.MaxRetries, cfg.RetryDelay),
		client: anthropic.NewClient(opts...),
	}, nil
}

// Capabilities reports that every Anthropic model supports tool use.
func (p *AnthropicProvider) Capabilities(model string) models.ProviderCapabilities {
	return models.ProviderCapabilities{SupportsTools: true}
}

// Chat sends messages to Claude and returns a structured reply, retrying
// transient transport errors per BaseProvider.Retry.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []models.Message, opts ChatOptions) (ChatResponse, error) {
	params := anthropic.MessageNewParams{
		Model: anthropic.Model(opts.Model),
		MaxTokens: int64(maxTokensOrDefault(opts.MaxTokens)),
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}
	msgs, err := anthropicMessages(messages)
	if err != nil {
		return ChatResponse{}, &ChatError{Kind: ErrKindValidation, Detail: err.Error()}
	}
	params.Messages = msgs

	if len(opts.Tools) > 0 {
		tools, err := anthropicTools(opts.Tools)
		if err != nil {
			return ChatResponse{}, &ChatError{Kind: ErrKindValidation, Detail: err.Error()}
		}
		params.Tools = tools
	}

	var resp *anthropic.Message
	retryErr := p.Retry(ctx, isRetryableAnthropic, func() error {
		var callErr error
		resp, callErr = p.client.Messages.New(ctx, params)
		return callErr
	})
	if retryErr != nil {
		return ChatResponse{}, &ChatError{Kind: ErrKindTransient, Detail: retryErr.Error()}
	}

	return anthropicToResponse(resp), nil
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return 4096
	}
	return n
}

func isRetryableAnthropic(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return false
}

func anthropicMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			continue // system is carried separately in params.System
		case models.RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if len(tc.Input) > 0 {
					if err := json.Unmarshal(tc.Input, &input); err != nil {
						return nil, err
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		case models.RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		}
	}
	return result, nil
}

func anthropicTools(tools []models.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				return nil, err
			}
		}
		tp := anthropic.ToolUnionParamOfTool(schema, t.Name)
		tp.OfTool.Description = anthropic.String(t.Description)
		result = append(result, tp)
	}
	return result, nil
}

func anthropicToResponse(msg *anthropic.Message) ChatResponse {
	var resp ChatResponse
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Text += variant.Text
		case anthropic.ToolUseBlock:
			input, _ := json.Marshal(variant.Input)
			if variant.Name == PlanToolName {
				resp.IsPlan = true
				resp.Text = ExtractPlanText(input)
				continue
			}
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ID: variant.ID,
				Name: variant.Name,
				Input: input,
			})
		case anthropic.ThinkingBlock:
			resp.ThinkingBlocks = append(resp.ThinkingBlocks, models.ThinkingBlock{
				Text: variant.Thinking,
				Signature: variant.Signature,
			})
		}
	}
	resp.PromptTokens = int(msg.Usage.InputTokens)
	resp.CompletionTokens = int(msg.Usage.OutputTokens)
	return resp
}
