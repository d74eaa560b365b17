package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"memoire/internal/domain"
	"memoire/internal/retry"
	"memoire/internal/tooling"
)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRetryPolicy retries invocations whose output is marked retryable.
// The zero Policy, which is the default, never retries.
func WithRetryPolicy(p retry.Policy) DispatcherOption {
	return func(d *Dispatcher) { d.policy = p }
}

// WithDispatcherLanguage sets the language of dispatcher-level failure messages.
func WithDispatcherLanguage(lang string) DispatcherOption {
	return func(d *Dispatcher) { d.msg = catalogFor(lang) }
}

// WithDispatcherLogger sets a structured logger for the Dispatcher.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// Dispatcher runs planned invocations one after another, in order. Each
// invocation is isolated: a failure or panic in one never prevents the next,
// and there is no transaction spanning them.
type Dispatcher struct {
	executors *tooling.Executors
	policy    retry.Policy
	msg       messages
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. Panics if executors is nil.
func NewDispatcher(executors *tooling.Executors, opts ...DispatcherOption) *Dispatcher {
	if executors == nil {
		panic("agent: executors must not be nil")
	}
	d := &Dispatcher{executors: executors, msg: catalogFor("fr")}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) log() *slog.Logger {
	if d.logger != nil {
		return d.logger
	}
	return slog.Default()
}

// Dispatch executes invocations sequentially and returns one result per
// invocation, in the same order.
func (d *Dispatcher) Dispatch(ctx context.Context, invocations []domain.ToolInvocationRequest) []domain.ToolInvocationResult {
	results := make([]domain.ToolInvocationResult, 0, len(invocations))
	for i, inv := range invocations {
		var (
			out domain.ToolOutput
			key string
		)
		attempts := d.policy.Run(ctx, func(int) bool {
			out, key = d.invoke(ctx, inv)
			return !out.Success && out.Retryable
		})

		res := domain.ToolInvocationResult{
			ToolName: inv.ToolName,
			Input:    inv.Input,
			Output:   out,
		}
		if out.Success && key != "" {
			res.EntityID = out.Fields[key]
		}
		results = append(results, res)

		d.log().Info("tool invocation finished",
			"index", i,
			"tool", inv.ToolName,
			"success", out.Success,
			"attempts", attempts,
		)
	}
	return results
}

// invoke runs one invocation and converts a panic into a failed output.
func (d *Dispatcher) invoke(ctx context.Context, inv domain.ToolInvocationRequest) (out domain.ToolOutput, entityKey string) {
	defer func() {
		if r := recover(); r != nil {
			d.log().Error("tool panicked", "tool", inv.ToolName, "panic", fmt.Sprint(r))
			out, entityKey = domain.Failure(fmt.Sprintf(d.msg.toolPanicked, inv.ToolName)), ""
		}
	}()
	return d.execute(ctx, inv.Kind, inv.ToolName, inv.Input)
}

// execute is the single routing point from ToolKind to executor.
func (d *Dispatcher) execute(ctx context.Context, kind domain.ToolKind, name string, input json.RawMessage) (domain.ToolOutput, string) {
	e := d.executors
	switch kind {
	case domain.ToolAddChapter:
		return e.AddChapter(ctx, input), tooling.KeyChapterID
	case domain.ToolQuickCapture:
		return e.QuickCapture(ctx, input), tooling.KeyNoteID
	case domain.ToolAddDailyObjective:
		return e.AddDailyObjective(ctx, input), tooling.KeyObjectiveID
	case domain.ToolAddSource:
		return e.AddSource(ctx, input), tooling.KeySourceID
	case domain.ToolAddTask:
		return e.AddTask(ctx, input), tooling.KeyTaskID
	case domain.ToolRefinePrompt:
		return e.RefinePrompt(ctx, input), tooling.KeyLogID
	default:
		return domain.Failure(fmt.Sprintf(d.msg.unknownTool, name)), ""
	}
}
