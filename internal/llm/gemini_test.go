package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"memoire/internal/domain"
)

type fakeGeminiModels struct {
	resp   *genai.GenerateContentResponse
	err    error
	config *genai.GenerateContentConfig
	model  string
}

func (f *fakeGeminiModels) GenerateContent(_ context.Context, model string, _ []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	return f.resp, f.err
}

func TestGeminiOracle_Complete_ShouldMapFunctionCalls(t *testing.T) {
	fake := &fakeGeminiModels{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "C'est noté."},
				{FunctionCall: &genai.FunctionCall{Name: "add_chapter", Args: map[string]any{"name": "Résultats"}}},
			}},
		}},
	}}
	o := &GeminiOracle{models: fake, model: "gemini-2.5-flash"}

	out, err := o.Complete(context.Background(), domain.CompletionRequest{
		SystemPrompt: "system",
		UserPrompt:   "ajoute un chapitre résultats",
		Tools:        testTools,
	})
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash", fake.model)
	require.NotNil(t, fake.config.SystemInstruction)
	require.Len(t, fake.config.Tools, 1)
	assert.Len(t, fake.config.Tools[0].FunctionDeclarations, 1)

	assert.Equal(t, "C'est noté.", out.Message)
	assert.Equal(t, domain.FinishToolCalls, out.FinishReason)
	require.Len(t, out.ToolCalls, 1)
	assert.JSONEq(t, `{"name":"Résultats"}`, string(out.ToolCalls[0].Input))
}

func TestGeminiOracle_Complete_WhenSafetyStop_ShouldReportContentFilter(t *testing.T) {
	fake := &fakeGeminiModels{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
	}}
	out, err := (&GeminiOracle{models: fake}).Complete(context.Background(), domain.CompletionRequest{UserPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, domain.FinishContentFilter, out.FinishReason)
}

func TestGeminiOracle_Complete_WhenNoCandidates_ShouldReturnError(t *testing.T) {
	fake := &fakeGeminiModels{resp: &genai.GenerateContentResponse{}}
	_, err := (&GeminiOracle{models: fake}).Complete(context.Background(), domain.CompletionRequest{UserPrompt: "x"})
	assert.ErrorContains(t, err, "no candidates")
}

func TestGeminiOracle_Complete_WhenAPIError_ShouldWrapError(t *testing.T) {
	boom := errors.New("503 unavailable")
	fake := &fakeGeminiModels{err: boom}
	_, err := (&GeminiOracle{models: fake}).Complete(context.Background(), domain.CompletionRequest{UserPrompt: "x"})
	assert.ErrorIs(t, err, boom)
}

func TestNewGeminiOracle_WhenClientFails_ShouldReturnError(t *testing.T) {
	orig := newGenaiClient
	defer func() { newGenaiClient = orig }()
	newGenaiClient = func(context.Context, *genai.ClientConfig) (*genai.Client, error) {
		return nil, errors.New("no credentials")
	}

	_, err := NewGeminiOracle(context.Background(), "key", "m")
	assert.ErrorContains(t, err, "create client")
}
