// Package agent is the command agent's API surface: it plans an instruction,
// dispatches the resulting tool invocations and synthesizes one reply.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"memoire/internal/domain"
	"memoire/internal/injection"
	"memoire/internal/planner"
	"memoire/internal/promptlog"
)

// Request lifecycle states, logged at debug level.
const (
	stateReceived    = "received"
	statePlanned     = "planned"
	stateDispatching = "dispatching"
	stateSynthesized = "synthesized"
	stateReturned    = "returned"
	stateDegraded    = "returned_degraded"
)

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets a structured logger for the Agent.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithRequestTimeout bounds the planning call. Dispatch is not bounded: once
// a tool is invoked it runs to completion. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(a *Agent) { a.timeout = d }
}

// WithPromptLog enables RefineFromLog.
func WithPromptLog(r *promptlog.Repository, historyLimit int) Option {
	return func(a *Agent) {
		a.prompts = r
		if historyLimit > 0 {
			a.historyLimit = historyLimit
		}
	}
}

// Agent processes natural-language instructions. It holds no per-request
// state and is safe for concurrent use.
type Agent struct {
	planner      *planner.Planner
	dispatcher   *Dispatcher
	synth        *Synthesizer
	refiner      domain.Refiner
	prompts      *promptlog.Repository
	historyLimit int
	timeout      time.Duration
	logger       *slog.Logger
}

// New assembles an Agent. Panics if a collaborator is nil.
func New(p *planner.Planner, d *Dispatcher, s *Synthesizer, r domain.Refiner, opts ...Option) *Agent {
	if p == nil || d == nil || s == nil || r == nil {
		panic("agent: planner, dispatcher, synthesizer and refiner must not be nil")
	}
	a := &Agent{
		planner:      p,
		dispatcher:   d,
		synth:        s,
		refiner:      r,
		historyLimit: promptlog.DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.Default()
}

func (a *Agent) transition(state string, attrs ...any) {
	a.log().Debug("agent state", append([]any{"state", state}, attrs...)...)
}

// ProcessUserRequest runs one instruction end to end. It never returns an
// error: every failure is folded into the response message and the
// per-invocation results.
func (a *Agent) ProcessUserRequest(ctx context.Context, req domain.AgentRequest) domain.AgentResponse {
	a.transition(stateReceived)
	if strings.TrimSpace(req.UserRequest) == "" {
		a.transition(stateReturned, "reason", "blank request")
		return domain.AgentResponse{ResponseMessage: a.synth.Synthesize("", nil, false)}
	}
	if scan := injection.Scan(req.UserRequest); scan.Detected {
		a.log().Warn("possible prompt injection", "patterns", scan.Patterns)
	}

	plan := a.plan(ctx, req)
	a.transition(statePlanned, "invocations", len(plan.Invocations), "degraded", plan.Degraded)

	var results []domain.ToolInvocationResult
	if len(plan.Invocations) > 0 {
		a.transition(stateDispatching)
		results = a.dispatcher.Dispatch(context.WithoutCancel(ctx), plan.Invocations)
	}

	msg := a.synth.Synthesize(plan.DraftMessage, results, plan.Degraded)
	a.transition(stateSynthesized)

	if plan.Degraded {
		a.transition(stateDegraded, "finish_reason", plan.FinishReason)
	} else {
		a.transition(stateReturned)
	}
	return domain.AgentResponse{
		ResponseMessage: msg,
		ActionsTaken:    results,
		Degraded:        plan.Degraded,
	}
}

// plan calls the planner under the request timeout and never returns nil.
func (a *Agent) plan(ctx context.Context, req domain.AgentRequest) (plan *planner.Plan) {
	defer func() {
		if r := recover(); r != nil {
			a.log().Error("planner panicked", "panic", fmt.Sprint(r))
			plan = &planner.Plan{FinishReason: domain.FinishOther, Degraded: true}
		}
	}()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	plan, err := a.planner.Plan(ctx, req)
	if err != nil {
		a.log().Warn("planning failed", "error", err)
	}
	if plan == nil {
		plan = &planner.Plan{FinishReason: domain.FinishOther, Degraded: true}
	}
	return plan
}

// RefinePrompt asks the refinement engine to improve prompt. Unlike
// ProcessUserRequest it propagates failures: there is nothing to fall back to.
func (a *Agent) RefinePrompt(ctx context.Context, prompt string, history []string) (domain.Refinement, error) {
	return a.refiner.Refine(ctx, prompt, history)
}

// ErrNoPromptLog is returned by RefineFromLog when the agent has no prompt log.
var ErrNoPromptLog = errors.New("agent: prompt log not configured")

// RefineFromLog refines prompt using the recent prompt log as history and
// records the result tagged as user-originated. It returns the refinement and
// the new log entry id.
func (a *Agent) RefineFromLog(ctx context.Context, prompt string) (domain.Refinement, string, error) {
	if a.prompts == nil {
		return domain.Refinement{}, "", ErrNoPromptLog
	}
	history, err := a.prompts.History(ctx, a.historyLimit)
	if err != nil {
		a.log().Warn("prompt history unavailable, refining without it", "error", err)
		history = nil
	}
	ref, err := a.refiner.Refine(ctx, prompt, history)
	if err != nil {
		return domain.Refinement{}, "", err
	}
	id, err := a.prompts.Append(ctx, domain.PromptLogEntry{
		OriginalPrompt: strings.TrimSpace(prompt),
		RefinedPrompt:  ref.RefinedPrompt,
		Reasoning:      ref.Reasoning,
		Tags:           []string{domain.TagUser},
	})
	if err != nil {
		return ref, "", fmt.Errorf("agent: log refinement: %w", err)
	}
	return ref, id, nil
}
