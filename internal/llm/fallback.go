package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"memoire/internal/domain"
)

// FallbackOracle tries each oracle in order and returns the first successful
// completion. Context cancellation stops the chain immediately.
type FallbackOracle struct {
	oracles []domain.Oracle
	logger  *slog.Logger
}

// NewFallbackOracle chains primary with fallbacks. Panics if primary is nil.
func NewFallbackOracle(logger *slog.Logger, primary domain.Oracle, fallbacks ...domain.Oracle) *FallbackOracle {
	if primary == nil {
		panic("llm: primary oracle must not be nil")
	}
	chain := []domain.Oracle{primary}
	for _, f := range fallbacks {
		if f != nil {
			chain = append(chain, f)
		}
	}
	return &FallbackOracle{oracles: chain, logger: logger}
}

func (f *FallbackOracle) log() *slog.Logger {
	if f.logger != nil {
		return f.logger
	}
	return slog.Default()
}

// Complete implements domain.Oracle.
func (f *FallbackOracle) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	var errs []error
	for i, o := range f.oracles {
		out, err := o.Complete(ctx, req)
		if err == nil {
			if i > 0 {
				f.log().Info("fallback oracle answered", "index", i)
			}
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.log().Warn("oracle failed, trying next", "index", i, "error", err)
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("llm: all %d oracles failed: %w", len(f.oracles), errors.Join(errs...))
}

var _ domain.Oracle = (*FallbackOracle)(nil)
