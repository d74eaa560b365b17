package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"memoire/internal/domain"
	"memoire/internal/scheduler"
)

// CheckOptions holds options for the check command.
type CheckOptions struct {
	Fix bool // if true, write default config when missing
}

// RunCheck checks the config at cfgPath, the oracle provider, the store and
// the schedules, printing one note per finding. Returns the exit code.
func RunCheck(ctx context.Context, cfgPath string, opts CheckOptions, stdout, stderr io.Writer) int {
	note := func(section, message string) {
		fmt.Fprintf(stdout, "  [%s] %s\n", section, message)
	}

	// 1. Config
	cfg, err := configLoad(cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			note("Config", err.Error())
			return 1
		}
		note("Config", fmt.Sprintf("No config at %s.", cfgPath))
		if !opts.Fix {
			note("Config", "Run with --fix to create a default config.")
			fmt.Fprintln(stdout, "  Check complete.")
			return 0
		}
		if writeErr := configWriteDefault(cfgPath); writeErr != nil {
			fmt.Fprintf(stderr, "  failed to write default config: %v\n", writeErr)
			return 1
		}
		note("Config", fmt.Sprintf("Wrote default config to %s.", cfgPath))
		if cfg, err = configLoad(cfgPath); err != nil {
			note("Config", err.Error())
			return 1
		}
	} else {
		note("Config", fmt.Sprintf("Loaded %s.", cfgPath))
	}

	failed := false

	// 2. Oracle
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := newOracle(ctx, cfg.Agent, getSecret, cfg.Retry, quiet); err != nil {
		note("Agent", err.Error())
		failed = true
	} else {
		note("Agent", fmt.Sprintf("provider=%s model=%s language=%s", cfg.Agent.Provider, orDefault(cfg.Agent.Model), cfg.Agent.Language))
	}
	for _, fb := range cfg.Agent.Fallbacks {
		fbCfg := domain.AgentConfig{Provider: fb.Provider, Model: fb.Model, BaseURL: fb.BaseURL}
		if _, err := newOracle(ctx, fbCfg, getSecret, domain.RetryConfig{}, quiet); err != nil {
			note("Agent", fmt.Sprintf("fallback %s unavailable: %v", fb.Provider, err))
		}
	}

	// 3. Store
	if _, closer, err := storeOpen(ctx, cfg.Store); err != nil {
		note("Store", err.Error())
		failed = true
	} else {
		closer.Close()
		note("Store", fmt.Sprintf("driver=%s ok.", cfg.Store.Driver))
	}

	// 4. Gateway
	note("Gateway", fmt.Sprintf("port=%d", cfg.Gateway.Port))
	if cfg.Gateway.Auth.AuthToken == "" {
		note("Gateway", "No auth token. Set gateway.auth.authToken before exposing the gateway.")
	}

	// 5. Schedules
	for i, s := range cfg.Schedules {
		if err := scheduler.ValidateSpec(s.Cron); err != nil {
			note("Schedules", fmt.Sprintf("schedules[%d] %q: %v", i, s.Cron, err))
			failed = true
		}
	}
	if n := len(cfg.Schedules); n > 0 && !failed {
		note("Schedules", fmt.Sprintf("%d schedule(s) ok.", n))
	}

	if failed {
		fmt.Fprintln(stdout, "  Check failed.")
		return 1
	}
	fmt.Fprintln(stdout, "  Check complete.")
	return 0
}

func orDefault(model string) string {
	if model == "" {
		return "(default)"
	}
	return model
}
