package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"memoire/internal/domain"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicOracle calls the Anthropic Messages API with tools.
type AnthropicOracle struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicOracle returns an oracle for model. An empty baseURL targets the
// public API. SDK-level retries are disabled; retry.RetryableOracle owns them.
func NewAnthropicOracle(apiKey, model, baseURL string) *AnthropicOracle {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicOracle{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: defaultAnthropicMaxTokens,
	}
}

// Complete implements domain.Oracle.
func (a *AnthropicOracle) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
	for _, def := range req.Tools {
		s, err := decodeObjectSchema(def.InputSchema)
		if err != nil {
			return nil, err
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: s.Properties,
				Required:   s.Required,
			},
		}})
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
		Tools: tools,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	out := &domain.Completion{}
	var text strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
				Name:  b.Name,
				Input: json.RawMessage(b.Input),
			})
		}
	}
	out.Message = text.String()
	out.FinishReason = anthropicFinish(msg.StopReason, out.ToolCalls)
	return out, nil
}

func anthropicFinish(r anthropic.StopReason, calls []domain.ToolCall) domain.FinishReason {
	switch r {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonToolUse, anthropic.StopReasonStopSequence, "":
		return finishFromCalls(calls)
	case anthropic.StopReasonMaxTokens:
		return domain.FinishLength
	case anthropic.StopReasonRefusal:
		return domain.FinishContentFilter
	default:
		return domain.FinishOther
	}
}

var _ domain.Oracle = (*AnthropicOracle)(nil)
