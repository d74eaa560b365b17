package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"memoire/internal/domain"
	"memoire/internal/retry"
)

// defaultCooldownDuration is the time a rate-limited key stays in cooldown.
const defaultCooldownDuration = 60 * time.Second

// Environment variables holding provider API keys. A value may list several
// comma-separated keys; they are rotated through a KeyPool.
const (
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvAnthropicKey  = "ANTHROPIC_API_KEY"
	EnvGeminiKey     = "GEMINI_API_KEY"
	EnvOpenRouterKey = "OPENROUTER_API_KEY"
)

// SecretGetter returns a secret by name (e.g. "OPENAI_API_KEY").
type SecretGetter func(name string) (string, error)

// EnvSecrets reads secrets from the process environment.
func EnvSecrets(name string) (string, error) {
	return os.Getenv(name), nil
}

// NewOracle builds the oracle described by cfg: the primary provider followed
// by its fallbacks, each wrapped with retry when retryCfg allows retries.
// Fallbacks that cannot be built are skipped with a warning.
func NewOracle(ctx context.Context, cfg domain.AgentConfig, getSecret SecretGetter, retryCfg domain.RetryConfig, logger *slog.Logger) (domain.Oracle, error) {
	if getSecret == nil {
		getSecret = EnvSecrets
	}
	if logger == nil {
		logger = slog.Default()
	}
	primary, err := newBaseOracle(ctx, cfg.Provider, cfg.Model, cfg.BaseURL, getSecret)
	if err != nil {
		return nil, err
	}
	primary = wrapWithRetry(primary, retryCfg)
	if len(cfg.Fallbacks) == 0 {
		return primary, nil
	}

	var fallbacks []domain.Oracle
	for _, fb := range cfg.Fallbacks {
		o, err := newBaseOracle(ctx, fb.Provider, fb.Model, fb.BaseURL, getSecret)
		if err != nil {
			logger.Warn("skipping fallback oracle", "provider", fb.Provider, "error", err)
			continue
		}
		fallbacks = append(fallbacks, wrapWithRetry(o, retryCfg))
	}
	if len(fallbacks) == 0 {
		return primary, nil
	}
	return NewFallbackOracle(logger, primary, fallbacks...), nil
}

// newBaseOracle creates one provider's oracle without retry or fallback.
func newBaseOracle(ctx context.Context, provider, model, baseURL string, getSecret SecretGetter) (domain.Oracle, error) {
	switch provider {
	case "", "local":
		return NewLocalOracle("Local: "), nil
	case "openai":
		return resolveKeyedOracle("openai", EnvOpenAIKey, getSecret, func(key string) (domain.Oracle, error) {
			return NewOpenAIOracle(key, model, baseURL), nil
		})
	case "openrouter":
		if baseURL == "" {
			baseURL = OpenRouterBaseURL
		}
		return resolveKeyedOracle("openrouter", EnvOpenRouterKey, getSecret, func(key string) (domain.Oracle, error) {
			return NewOpenAIOracle(key, model, baseURL), nil
		})
	case "ollama":
		if baseURL == "" {
			baseURL = OllamaBaseURL
		}
		// Ollama ignores the key but the client requires one.
		return NewOpenAIOracle("ollama", model, baseURL), nil
	case "anthropic":
		return resolveKeyedOracle("anthropic", EnvAnthropicKey, getSecret, func(key string) (domain.Oracle, error) {
			return NewAnthropicOracle(key, model, baseURL), nil
		})
	case "gemini":
		return resolveKeyedOracle("gemini", EnvGeminiKey, getSecret, func(key string) (domain.Oracle, error) {
			return NewGeminiOracle(ctx, key, model)
		})
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (use: local, openai, anthropic, openrouter, ollama, gemini)", provider)
	}
}

// splitKeys splits a raw secret by commas, trims whitespace and drops empty entries.
func splitKeys(raw string) []string {
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}

// resolveKeyedOracle fetches secretName and returns a single oracle for one
// key or a KeyPoolOracle for several.
func resolveKeyedOracle(providerName, secretName string, getSecret SecretGetter, makeOracle func(key string) (domain.Oracle, error)) (domain.Oracle, error) {
	raw, err := getSecret(secretName)
	if err != nil {
		return nil, err
	}
	keys := splitKeys(raw)
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s provider: API key not set (export %s=<key>)", providerName, secretName)
	}
	if len(keys) == 1 {
		return makeOracle(keys[0])
	}

	pool, err := NewKeyPool(keys, defaultCooldownDuration)
	if err != nil {
		return nil, fmt.Errorf("%s key pool: %w", providerName, err)
	}
	oracles := make([]domain.Oracle, len(keys))
	for i, k := range keys {
		if oracles[i], err = makeOracle(k); err != nil {
			return nil, err
		}
	}
	return NewKeyPoolOracle(pool, oracles)
}

// wrapWithRetry decorates o with retry logic when rc allows retries.
func wrapWithRetry(o domain.Oracle, rc domain.RetryConfig) domain.Oracle {
	if rc.MaxRetries <= 0 {
		return o
	}
	return retry.NewRetryableOracle(o, retry.FromDomain(rc))
}
