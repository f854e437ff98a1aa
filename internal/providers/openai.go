package providers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/osa/runtime/pkg/models"
)

// OpenAIConfig configures an OpenAIProvider. BaseURL lets this adapter
// front any OpenAI-compatible endpoint (Azure, local gateways, …).
type OpenAIConfig struct {
	APIKey string
	BaseURL string
	DefaultModel string
	MaxRetries int
	RetryDelay time.Duration
	// MinToolModelSizeBytes gates tool schemas off for small local models
	//; 0 disables the gate.
	MinToolModelSizeBytes int64
}

// OpenAIProvider implements Provider against the Chat Completions API.
type OpenAIProvider struct {
	BaseProvider
	client *openai.Client
	minToolSz int64
}

// NewOpenAIProvider builds a provider from config.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		BaseProvider: NewBaseProvider("openai", cfg.MaxRetries, cfg.RetryDelay),
		client: openai.NewClientWithConfig(clientCfg),
		minToolSz: cfg.MinToolModelSizeBytes,
	}, nil
}

// Capabilities gates tool schemas off small local models below the
// configured minimum size.
func (p *OpenAIProvider) Capabilities(model string) models.ProviderCapabilities {
	return models.ProviderCapabilities{SupportsTools: true, MinToolModelSize: p.minToolSz}
}

// Chat sends messages to the Chat Completions API and returns a structured
// reply, retrying transient transport errors per BaseProvider.Retry.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []models.Message, opts ChatOptions) (ChatResponse, error) {
	req := openai.ChatCompletionRequest{
		Model: opts.Model,
		MaxTokens: maxTokensOrDefault(opts.MaxTokens),
		Messages: openaiMessages(messages, opts.System),
	}
	if len(opts.Tools) > 0 {
		tools, err := openaiTools(opts.Tools)
		if err != nil {
			return ChatResponse{}, &ChatError{Kind: ErrKindValidation, Detail: err.Error()}
		}
		req.Tools = tools
	}

	var resp openai.ChatCompletionResponse
	retryErr := p.Retry(ctx, isRetryableOpenAI, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, req)
		return callErr
	})
	if retryErr != nil {
		return ChatResponse{}, &ChatError{Kind: ErrKindTransient, Detail: retryErr.Error()}
	}
	return openaiToResponse(resp), nil
}

func isRetryableOpenAI(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	return false
}

func openaiMessages(messages []models.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		case models.RoleUser:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case models.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID: tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name: tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			result = append(result, msg)
		case models.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleTool,
				Content: m.Content,
				ToolCallID: m.ToolCallID,
			})
		}
	}
	return result
}

func openaiTools(tools []models.ToolDefinition) ([]openai.Tool, error) {
	result := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params any
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &params); err != nil {
				return nil, err
			}
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name: t.Name,
				Description: t.Description,
				Parameters: params,
			},
		})
	}
	return result, nil
}

func openaiToResponse(resp openai.ChatCompletionResponse) ChatResponse {
	var out ChatResponse
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.Text = choice.Message.Content
		for _, tc := range choice.Message.ToolCalls {
			if tc.Function.Name == PlanToolName {
				out.IsPlan = true
				out.Text = ExtractPlanText([]byte(tc.Function.Arguments))
				continue
			}
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ID: tc.ID,
				Name: tc.Function.Name,
				Input: json.RawMessage(tc.Function.Arguments),
			})
		}
	}
	out.PromptTokens = resp.Usage.PromptTokens
	out.CompletionTokens = resp.Usage.CompletionTokens
	return out
}
