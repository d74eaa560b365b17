// Package cli holds the commands behind the memoire binary: bootstrapping the
// agent from configuration, one-shot requests, prompt refinement, the prompt
// log and the configuration check.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"memoire/internal/agent"
	"memoire/internal/domain"
	"memoire/internal/logging"
	"memoire/internal/promptlog"
)

// Runtime is a fully wired agent and the resources it owns.
type Runtime struct {
	Config  *domain.Config
	Logger  *slog.Logger
	Store   domain.Store
	Agent   *agent.Agent
	Prompts *promptlog.Repository

	closer io.Closer
}

// Bootstrap opens the store, builds the oracle chain and assembles the agent
// described by cfg. Logs go to logOut. Close releases the store.
func Bootstrap(ctx context.Context, cfg *domain.Config, logOut io.Writer) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cli: nil config")
	}
	logger := logging.New(cfg.Infra, logOut)

	st, closer, err := storeOpen(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("cli: open store: %w", err)
	}
	oracle, err := newOracle(ctx, cfg.Agent, getSecret, cfg.Retry, logger)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("cli: build oracle: %w", err)
	}

	deps := agent.Deps{Config: *cfg, Oracle: oracle, Store: st, Logger: logger}
	if cfg.Refine.TokenBudget > 0 {
		tk, err := newTokenizer(cfg.Refine.Encoding)
		if err != nil {
			logger.Warn("token budget disabled", "encoding", cfg.Refine.Encoding, "error", err)
		} else {
			deps.Tokenizer = tk
		}
	}

	return &Runtime{
		Config:  cfg,
		Logger:  logger,
		Store:   st,
		Agent:   agent.Assemble(deps),
		Prompts: promptlog.NewRepository(st),
		closer:  closer,
	}, nil
}

// Close releases the store connection.
func (r *Runtime) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
