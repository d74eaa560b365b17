// Package tokenizer counts tokens so refinement history can be kept within
// the oracle's context budget.
package tokenizer

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"memoire/internal/domain"
)

// DefaultEncoding is used when no encoding is configured.
const DefaultEncoding = "cl100k_base"

// TikToken wraps tiktoken-go to implement domain.Tokenizer.
type TikToken struct {
	encoding *tiktoken.Tiktoken
}

// NewTikToken creates a new TikToken tokenizer with the given encoding name.
// Common encodings: "cl100k_base" (GPT-4/3.5), "o200k_base" (GPT-4o). An
// empty name selects DefaultEncoding.
// Returns an error if the encoding is not recognized.
func NewTikToken(encodingName string) (*TikToken, error) {
	if encodingName == "" {
		encodingName = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: unknown encoding %q: %w", encodingName, err)
	}
	return &TikToken{encoding: enc}, nil
}

// CountTokens returns the number of tokens in the given text.
func (t *TikToken) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	tokens := t.encoding.Encode(text, nil, nil)
	return len(tokens), nil
}

// FitNewest returns the longest prefix of items whose combined token count
// stays within budget. items are expected newest first, so the oldest are
// dropped. A non-positive budget keeps everything.
func FitNewest(t domain.Tokenizer, items []string, budget int) ([]string, error) {
	if t == nil || budget <= 0 {
		return items, nil
	}
	total := 0
	for i, item := range items {
		n, err := t.CountTokens(item)
		if err != nil {
			return items, fmt.Errorf("tokenizer: count: %w", err)
		}
		if total+n > budget {
			return items[:i], nil
		}
		total += n
	}
	return items, nil
}

var _ domain.Tokenizer = (*TikToken)(nil)
