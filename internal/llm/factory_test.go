package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoire/internal/domain"
	"memoire/internal/retry"
)

func secrets(m map[string]string) SecretGetter {
	return func(name string) (string, error) { return m[name], nil }
}

// =============================================================================
// NewOracle
// =============================================================================

func TestNewOracle_WhenProviderEmpty_ShouldReturnLocal(t *testing.T) {
	o, err := NewOracle(context.Background(), domain.AgentConfig{}, secrets(nil), domain.RetryConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LocalOracle{}, o)
}

func TestNewOracle_WhenUnknownProvider_ShouldReturnError(t *testing.T) {
	_, err := NewOracle(context.Background(), domain.AgentConfig{Provider: "mistral"}, secrets(nil), domain.RetryConfig{}, nil)
	assert.ErrorContains(t, err, "unknown LLM provider")
}

func TestNewOracle_WhenKeyMissing_ShouldReturnError(t *testing.T) {
	_, err := NewOracle(context.Background(), domain.AgentConfig{Provider: "openai"}, secrets(nil), domain.RetryConfig{}, nil)
	assert.ErrorContains(t, err, EnvOpenAIKey)
}

func TestNewOracle_WhenSecretGetterFails_ShouldReturnError(t *testing.T) {
	boom := errors.New("vault sealed")
	getter := func(string) (string, error) { return "", boom }
	_, err := NewOracle(context.Background(), domain.AgentConfig{Provider: "anthropic"}, getter, domain.RetryConfig{}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestNewOracle_WhenSeveralKeys_ShouldReturnKeyPoolOracle(t *testing.T) {
	o, err := NewOracle(context.Background(), domain.AgentConfig{Provider: "openai", Model: "gpt-4o"},
		secrets(map[string]string{EnvOpenAIKey: "k1, k2,"}), domain.RetryConfig{}, nil)
	require.NoError(t, err)
	kp, ok := o.(*KeyPoolOracle)
	require.True(t, ok, "want *KeyPoolOracle, got %T", o)
	assert.Equal(t, 2, kp.pool.Len())
}

func TestNewOracle_WhenRetryConfigured_ShouldWrapWithRetry(t *testing.T) {
	o, err := NewOracle(context.Background(), domain.AgentConfig{Provider: "ollama", Model: "llama3"},
		secrets(nil), domain.RetryConfig{MaxRetries: 2}, nil)
	require.NoError(t, err)
	assert.IsType(t, &retry.RetryableOracle{}, o)
}

func TestNewOracle_WhenFallbacksConfigured_ShouldChainValidOnes(t *testing.T) {
	cfg := domain.AgentConfig{
		Provider: "openrouter",
		Model:    "meta/llama",
		Fallbacks: []domain.FallbackConfig{
			{Provider: "anthropic", Model: "claude"}, // no key: skipped
			{Provider: "local"},
		},
	}
	o, err := NewOracle(context.Background(), cfg, secrets(map[string]string{EnvOpenRouterKey: "k"}), domain.RetryConfig{}, nil)
	require.NoError(t, err)
	fb, ok := o.(*FallbackOracle)
	require.True(t, ok, "want *FallbackOracle, got %T", o)
	assert.Len(t, fb.oracles, 2)
}

func TestNewOracle_WhenAllFallbacksInvalid_ShouldReturnPrimary(t *testing.T) {
	cfg := domain.AgentConfig{Fallbacks: []domain.FallbackConfig{{Provider: "nope"}}}
	o, err := NewOracle(context.Background(), cfg, secrets(nil), domain.RetryConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LocalOracle{}, o)
}

// =============================================================================
// splitKeys
// =============================================================================

func TestSplitKeys(t *testing.T) {
	assert.Equal(t, []string{"a"}, splitKeys("a"))
	assert.Equal(t, []string{"a", "b"}, splitKeys(" a , b "))
	assert.Empty(t, splitKeys(" , ,"))
	assert.Empty(t, splitKeys(""))
}
