package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"memoire/internal/domain"
	"memoire/internal/tooling"
)

// ErrNoCompletion is returned when the oracle returns neither an error nor a completion.
var ErrNoCompletion = errors.New("planner: oracle returned no completion")

// Plan is the oracle's single-shot decision for one request.
type Plan struct {
	DraftMessage string
	Invocations  []domain.ToolInvocationRequest
	FinishReason domain.FinishReason
	// Degraded is set when generation stopped abnormally or the oracle failed;
	// Invocations then hold whatever was parsed before the stop.
	Degraded bool
}

// Option configures a Planner.
type Option func(*Planner)

// WithLanguage sets the operating language the oracle must answer in.
func WithLanguage(lang string) Option {
	return func(p *Planner) {
		if lang != "" {
			p.language = lang
		}
	}
}

// WithLogger sets a structured logger for the Planner.
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// Planner sends an instruction and the full tool catalogue to the oracle and
// turns its answer into tool invocations. There is no re-planning: one
// instruction, one oracle call.
type Planner struct {
	oracle   domain.Oracle
	registry *tooling.Registry
	language string
	logger   *slog.Logger
}

// NewPlanner creates a Planner. Panics if oracle or registry is nil.
func NewPlanner(oracle domain.Oracle, registry *tooling.Registry, opts ...Option) *Planner {
	if oracle == nil {
		panic("planner: oracle must not be nil")
	}
	if registry == nil {
		panic("planner: registry must not be nil")
	}
	p := &Planner{
		oracle:   oracle,
		registry: registry,
		language: "fr",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// log returns the Planner's logger, falling back to the default slog logger.
func (p *Planner) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return slog.Default()
}

// Plan asks the oracle which tools to invoke for req. On oracle failure it
// returns a degraded, empty plan together with the error, so callers can
// still synthesize a reply.
func (p *Planner) Plan(ctx context.Context, req domain.AgentRequest) (*Plan, error) {
	comp, err := p.oracle.Complete(ctx, domain.CompletionRequest{
		SystemPrompt: BuildSystemPrompt(p.language),
		UserPrompt:   req.UserRequest,
		Tools:        p.registry.Definitions(),
	})
	if err == nil && comp == nil {
		err = ErrNoCompletion
	}
	if err != nil {
		p.log().Warn("oracle failed during planning", "error", err)
		return &Plan{FinishReason: domain.FinishOther, Degraded: true}, fmt.Errorf("planner: %w", err)
	}

	plan := &Plan{
		DraftMessage: strings.TrimSpace(comp.Message),
		Invocations:  make([]domain.ToolInvocationRequest, 0, len(comp.ToolCalls)),
		FinishReason: comp.FinishReason,
	}
	for _, call := range comp.ToolCalls {
		input := call.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		kind := domain.ToolUnknown
		if def, ok := p.registry.Lookup(call.Name); ok {
			kind = def.Kind
		} else {
			p.log().Warn("oracle requested unknown tool", "tool", call.Name)
		}
		plan.Invocations = append(plan.Invocations, domain.ToolInvocationRequest{
			Kind:     kind,
			ToolName: call.Name,
			Input:    input,
		})
	}
	if plan.FinishReason == "" {
		plan.FinishReason = domain.FinishStop
		if len(plan.Invocations) > 0 {
			plan.FinishReason = domain.FinishToolCalls
		}
	}
	plan.Degraded = plan.FinishReason.Abnormal()

	p.log().Info("plan generated",
		"invocations", len(plan.Invocations),
		"finish_reason", plan.FinishReason,
		"degraded", plan.Degraded,
	)
	return plan, nil
}

var languageNames = map[string]string{
	"fr": "French",
	"en": "English",
}

// BuildSystemPrompt returns the fixed behavioural instructions for lang.
func BuildSystemPrompt(lang string) string {
	name, ok := languageNames[lang]
	if !ok {
		name = lang
	}
	return fmt.Sprintf(`You are the assistant of a student writing a thesis. You manage their workspace
(chapters, notes, daily objectives, bibliography, tasks, prompt refinements) through the tools provided.

Rules:
- Always answer in %s.
- Be concise.
- When you call tools, your message must confirm what you did, including failures.
- If the intent is ambiguous, ask a short clarifying question instead of calling tools.
- If you are reasonably confident, act rather than ask.
- You may call several tools in one answer; they run in the order you list them.`, name)
}
