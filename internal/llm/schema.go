// Package llm adapts hosted and local language models to domain.Oracle.
// Every oracle offers the request's tools to the model, returns the tool
// calls it made in order, and maps the provider's stop reason onto
// domain.FinishReason.
package llm

import (
	"encoding/json"
	"fmt"

	"memoire/internal/domain"
)

// objectSchema is the subset of a tool's JSON Schema the providers need
// separately: Anthropic takes properties and required as distinct fields.
type objectSchema struct {
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required"`
}

// decodeSchema parses a tool input schema into a generic map. An empty schema
// becomes an empty object schema.
func decodeSchema(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{"type": "object"}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("llm: decode tool schema: %w", err)
	}
	return m, nil
}

func decodeObjectSchema(raw json.RawMessage) (objectSchema, error) {
	var s objectSchema
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("llm: decode tool schema: %w", err)
	}
	return s, nil
}

// finishFromCalls picks a finish reason for providers that report a plain
// stop even when tools were called.
func finishFromCalls(calls []domain.ToolCall) domain.FinishReason {
	if len(calls) > 0 {
		return domain.FinishToolCalls
	}
	return domain.FinishStop
}
