package agent

import (
	"log/slog"
	"time"

	"memoire/internal/domain"
	"memoire/internal/planner"
	"memoire/internal/promptlog"
	"memoire/internal/refine"
	"memoire/internal/retry"
	"memoire/internal/tooling"
)

// Deps are the external collaborators of an Agent built from configuration.
type Deps struct {
	Config    domain.Config
	Oracle    domain.Oracle
	Store     domain.Store
	Tokenizer domain.Tokenizer // optional; enables the refinement token budget
	Logger    *slog.Logger
}

// Assemble builds a fully wired Agent from cfg: registry, executors, refinement
// engine, planner, dispatcher and synthesizer. Panics if Oracle or Store is nil.
func Assemble(d Deps) *Agent {
	cfg := d.Config
	lang := cfg.Agent.Language
	if lang == "" {
		lang = "fr"
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := refine.NewEngine(d.Oracle,
		refine.WithLogger(logger),
		refine.WithTokenBudget(d.Tokenizer, cfg.Refine.TokenBudget),
	)
	executors := tooling.NewExecutors(d.Store, engine,
		tooling.WithLogger(logger),
		tooling.WithHistoryLimit(cfg.Refine.HistoryLimit),
		tooling.WithLanguage(lang),
	)
	p := planner.NewPlanner(d.Oracle, tooling.DefaultRegistry(),
		planner.WithLanguage(lang),
		planner.WithLogger(logger),
	)
	dispatcher := NewDispatcher(executors,
		WithRetryPolicy(retry.Policy{Config: retry.FromDomain(cfg.ToolRetry)}),
		WithDispatcherLanguage(lang),
		WithDispatcherLogger(logger),
	)
	return New(p, dispatcher, NewSynthesizer(lang), engine,
		WithLogger(logger),
		WithRequestTimeout(time.Duration(cfg.Agent.RequestTimeout)*time.Second),
		WithPromptLog(promptlog.NewRepository(d.Store), cfg.Refine.HistoryLimit),
	)
}
