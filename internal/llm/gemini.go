package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"memoire/internal/domain"
)

// geminiModels is the slice of *genai.Models used by GeminiOracle.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiOracle calls the Gemini API through the genai SDK with function declarations.
type GeminiOracle struct {
	models geminiModels
	model  string
}

// newGenaiClient is the genai client constructor. Package-level var for test injection.
var newGenaiClient = genai.NewClient

// NewGeminiOracle returns an oracle for model using the Gemini API backend.
func NewGeminiOracle(ctx context.Context, apiKey, model string) (*GeminiOracle, error) {
	client, err := newGenaiClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiOracle{models: client.Models, model: model}, nil
}

// Complete implements domain.Oracle.
func (g *GeminiOracle) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, def := range req.Tools {
			params, err := decodeSchema(def.InputSchema)
			if err != nil {
				return nil, err
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 def.Name,
				Description:          def.Description,
				ParametersJsonSchema: params,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	contents := []*genai.Content{genai.NewContentFromText(req.UserPrompt, genai.RoleUser)}
	resp, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: no candidates in response")
	}

	cand := resp.Candidates[0]
	out := &domain.Completion{}
	var text strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.FunctionCall != nil {
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					return nil, fmt.Errorf("gemini: encode function args: %w", err)
				}
				out.ToolCalls = append(out.ToolCalls, domain.ToolCall{Name: part.FunctionCall.Name, Input: args})
				continue
			}
			text.WriteString(part.Text)
		}
	}
	out.Message = text.String()
	out.FinishReason = geminiFinish(cand.FinishReason, out.ToolCalls)
	return out, nil
}

func geminiFinish(r genai.FinishReason, calls []domain.ToolCall) domain.FinishReason {
	switch r {
	case genai.FinishReasonStop, genai.FinishReasonUnspecified, "":
		return finishFromCalls(calls)
	case genai.FinishReasonMaxTokens:
		return domain.FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return domain.FinishContentFilter
	default:
		return domain.FinishOther
	}
}

var _ domain.Oracle = (*GeminiOracle)(nil)
