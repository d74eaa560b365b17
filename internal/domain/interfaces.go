package domain

import "context"

// Oracle is the language model seen as a black box: it turns a system prompt,
// a user prompt and a tool catalogue into a message and zero or more tool calls.
// Its output is untrusted and must be validated by the caller.
type Oracle interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Store is the persistent record store. A single Insert is atomic; there is no
// transaction spanning several calls. Operations are already tenant-scoped.
type Store interface {
	// Insert writes record into table and returns the generated id.
	Insert(ctx context.Context, table string, record Record) (string, error)

	// Query returns records of table matching q (equality filter, order, limit).
	Query(ctx context.Context, table string, q Query) ([]Record, error)
}

// Refiner proposes an improved prompt given past effective prompts.
type Refiner interface {
	Refine(ctx context.Context, prompt string, history []string) (Refinement, error)
}

// Tokenizer counts tokens in a string for context budget management.
type Tokenizer interface {
	CountTokens(text string) (int, error)
}
