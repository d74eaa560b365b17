// Package refine asks the oracle for an improved version of a prompt, using
// the user's previous effective prompts as context.
package refine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"memoire/internal/domain"
	"memoire/internal/tokenizer"
	"memoire/internal/tooling"
)

// Errors returned by Refine.
var (
	ErrEmptyPrompt  = errors.New("refine: prompt must not be empty")
	ErrNoRefinement = errors.New("refine: oracle returned no refined prompt")
)

// SubmitToolName is the structured-output tool the oracle is asked to call.
const SubmitToolName = "submit_refinement"

// submission is the structured output expected from the oracle.
type submission struct {
	RefinedPrompt string `json:"refinedPrompt" jsonschema:"minLength=1" jsonschema_description:"The improved prompt, ready to send"`
	Reasoning     string `json:"reasoning" jsonschema_description:"Why the changes improve the prompt"`
}

var submitTool = domain.ToolDefinition{
	Name:        SubmitToolName,
	Description: "Submit the refined prompt and the reasoning behind the changes.",
	InputSchema: json.RawMessage(tooling.GenerateSchema(&submission{})),
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a structured logger. If l is nil it is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTokenBudget caps the tokens spent on history. Oldest entries are dropped
// first. A nil tokenizer or non-positive budget disables the cap.
func WithTokenBudget(t domain.Tokenizer, budget int) Option {
	return func(e *Engine) {
		if t != nil && budget > 0 {
			e.tokenizer = t
			e.tokenBudget = budget
		}
	}
}

// Engine implements domain.Refiner on top of an Oracle.
type Engine struct {
	oracle      domain.Oracle
	tokenizer   domain.Tokenizer
	tokenBudget int
	logger      *slog.Logger
}

// NewEngine returns an Engine backed by oracle. Panics if oracle is nil.
func NewEngine(oracle domain.Oracle, opts ...Option) *Engine {
	if oracle == nil {
		panic("refine: oracle must not be nil")
	}
	e := &Engine{oracle: oracle}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// log returns the Engine's logger, falling back to the default slog logger.
func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

// Refine asks the oracle to improve prompt. history holds previous effective
// prompts, newest first; it may be empty. A completion without a refined
// prompt is an error: the original is never substituted.
func (e *Engine) Refine(ctx context.Context, prompt string, history []string) (domain.Refinement, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return domain.Refinement{}, ErrEmptyPrompt
	}
	history = e.fitHistory(history)

	comp, err := e.oracle.Complete(ctx, domain.CompletionRequest{
		SystemPrompt: SystemPrompt,
		UserPrompt:   BuildUserPrompt(prompt, history),
		Tools:        []domain.ToolDefinition{submitTool},
	})
	if err != nil {
		return domain.Refinement{}, fmt.Errorf("refine: oracle: %w", err)
	}

	sub, ok := parseSubmission(comp)
	if !ok || strings.TrimSpace(sub.RefinedPrompt) == "" {
		e.log().Warn("refinement missing from oracle output", "finish_reason", comp.FinishReason)
		return domain.Refinement{}, ErrNoRefinement
	}
	return domain.Refinement{
		RefinedPrompt: strings.TrimSpace(sub.RefinedPrompt),
		Reasoning:     strings.TrimSpace(sub.Reasoning),
	}, nil
}

// fitHistory keeps the newest entries whose combined token count fits the
// budget.
func (e *Engine) fitHistory(history []string) []string {
	if e.tokenizer == nil {
		return history
	}
	fitted, err := tokenizer.FitNewest(e.tokenizer, history, e.tokenBudget)
	if err != nil {
		e.log().Warn("token count failed, keeping full history", "error", err)
	}
	return fitted
}

// parseSubmission reads the refinement from a submit_refinement tool call, or
// from a JSON object in the message text for oracles without tool calling.
// Either form must satisfy the submit_refinement input schema.
func parseSubmission(comp *domain.Completion) (submission, bool) {
	if comp == nil {
		return submission{}, false
	}
	for _, call := range comp.ToolCalls {
		if call.Name != SubmitToolName {
			continue
		}
		if sub, ok := decodeSubmission(call.Input); ok {
			return sub, true
		}
	}
	if raw := extractJSON(strings.TrimSpace(comp.Message)); raw != "" {
		return decodeSubmission(json.RawMessage(raw))
	}
	return submission{}, false
}

func decodeSubmission(raw json.RawMessage) (submission, bool) {
	if err := tooling.ValidateAgainstSchema(raw, string(submitTool.InputSchema)); err != nil {
		return submission{}, false
	}
	var sub submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return submission{}, false
	}
	return sub, true
}

// extractJSON finds a JSON object in the response: a fenced code block first,
// then the outermost braces.
func extractJSON(raw string) string {
	if idx := strings.Index(raw, "```"); idx >= 0 {
		start := strings.Index(raw[idx:], "\n")
		if start < 0 {
			return ""
		}
		start += idx + 1
		end := strings.Index(raw[start:], "```")
		if end < 0 {
			return ""
		}
		return strings.TrimSpace(raw[start : start+end])
	}

	braceStart := strings.Index(raw, "{")
	braceEnd := strings.LastIndex(raw, "}")
	if braceStart >= 0 && braceEnd > braceStart {
		return raw[braceStart : braceEnd+1]
	}
	return ""
}

var _ domain.Refiner = (*Engine)(nil)
