package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"memoire/internal/domain"
)

// Base URLs of the OpenAI-compatible endpoints the factory knows about.
const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	OllamaBaseURL     = "http://localhost:11434/v1"
)

// OpenAIOracle calls an OpenAI-compatible Chat Completions API with function
// tools. It also serves OpenRouter and Ollama through their base URLs.
type OpenAIOracle struct {
	client *openai.Client
	model  string
}

// NewOpenAIOracle returns an oracle for model. An empty baseURL targets api.openai.com.
func NewOpenAIOracle(apiKey, model, baseURL string) *OpenAIOracle {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIOracle{client: openai.NewClientWithConfig(cfg), model: model}
}

// Complete implements domain.Oracle.
func (o *OpenAIOracle) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tools := make([]openai.Tool, 0, len(req.Tools))
	for _, def := range req.Tools {
		params, err := decodeSchema(def.InputSchema)
		if err != nil {
			return nil, err
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		})
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt})

	chatReq := openai.ChatCompletionRequest{Model: o.model, Messages: messages}
	if len(tools) > 0 {
		chatReq.Tools = tools
	}
	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices in response")
	}

	choice := resp.Choices[0]
	out := &domain.Completion{Message: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	out.FinishReason = openAIFinish(choice.FinishReason, out.ToolCalls)
	return out, nil
}

func openAIFinish(r openai.FinishReason, calls []domain.ToolCall) domain.FinishReason {
	switch r {
	case openai.FinishReasonStop, openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall, "":
		return finishFromCalls(calls)
	case openai.FinishReasonLength:
		return domain.FinishLength
	case openai.FinishReasonContentFilter:
		return domain.FinishContentFilter
	default:
		return domain.FinishOther
	}
}

var _ domain.Oracle = (*OpenAIOracle)(nil)
