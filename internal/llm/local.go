package llm

import (
	"context"
	"encoding/json"
	"strings"

	"memoire/internal/domain"
)

// LocalOracle is a deterministic stub for manual testing without API keys.
//
// A user prompt of the form "/<tool> <json>" produces a single call to that
// tool when it is offered, with no message so the outcome is reported from
// the tool results; anything else is echoed back with Prefix.
type LocalOracle struct {
	Prefix string
}

// NewLocalOracle returns a local oracle that echoes prompts with prefix.
func NewLocalOracle(prefix string) *LocalOracle {
	return &LocalOracle{Prefix: prefix}
}

// Complete implements domain.Oracle.
func (l *LocalOracle) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if call, ok := parseSlashCall(req.UserPrompt, req.Tools); ok {
		return &domain.Completion{
			ToolCalls:    []domain.ToolCall{call},
			FinishReason: domain.FinishToolCalls,
		}, nil
	}
	return &domain.Completion{
		Message:      l.Prefix + req.UserPrompt,
		FinishReason: domain.FinishStop,
	}, nil
}

// parseSlashCall reads "/name {...}" from the last line of prompt.
func parseSlashCall(prompt string, tools []domain.ToolDefinition) (domain.ToolCall, bool) {
	prompt = strings.TrimSpace(prompt)
	if i := strings.LastIndex(prompt, "\n"); i >= 0 {
		prompt = strings.TrimSpace(prompt[i+1:])
	}
	if !strings.HasPrefix(prompt, "/") {
		return domain.ToolCall{}, false
	}
	name, args, _ := strings.Cut(prompt[1:], " ")
	offered := false
	for _, t := range tools {
		if t.Name == name {
			offered = true
			break
		}
	}
	if !offered {
		return domain.ToolCall{}, false
	}
	args = strings.TrimSpace(args)
	if args == "" {
		args = "{}"
	}
	if !json.Valid([]byte(args)) {
		return domain.ToolCall{}, false
	}
	return domain.ToolCall{Name: name, Input: json.RawMessage(args)}, true
}

var _ domain.Oracle = (*LocalOracle)(nil)
