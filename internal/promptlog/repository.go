// Package promptlog persists prompt refinements and rebuilds the history that
// feeds the next refinement.
package promptlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"memoire/internal/domain"
)

// DefaultHistoryLimit is the number of recent entries used as refinement context.
const DefaultHistoryLimit = 10

// ErrEmptyPrompt is returned when an entry has a blank original prompt.
var ErrEmptyPrompt = errors.New("promptlog: original prompt must not be empty")

// Column names of the prompt_logs table.
const (
	colOriginal  = "original_prompt"
	colRefined   = "refined_prompt"
	colReasoning = "reasoning"
	colTags      = "tags"
)

// Repository reads and writes PromptLogEntry records through a domain.Store.
type Repository struct {
	store domain.Store
	now   func() time.Time
}

// NewRepository returns a Repository over store. Panics if store is nil.
func NewRepository(store domain.Store) *Repository {
	if store == nil {
		panic("promptlog: store must not be nil")
	}
	return &Repository{store: store, now: time.Now}
}

// Append persists entry and returns its id. A zero Timestamp is set to now.
func (r *Repository) Append(ctx context.Context, entry domain.PromptLogEntry) (string, error) {
	if strings.TrimSpace(entry.OriginalPrompt) == "" {
		return "", ErrEmptyPrompt
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now()
	}
	rec := domain.Record{
		colOriginal:           entry.OriginalPrompt,
		colRefined:            entry.RefinedPrompt,
		colReasoning:          entry.Reasoning,
		colTags:               encodeTags(entry.Tags),
		domain.FieldCreatedAt: entry.Timestamp.UTC(),
	}
	id, err := r.store.Insert(ctx, domain.TablePromptLogs, rec)
	if err != nil {
		return "", fmt.Errorf("promptlog: append: %w", err)
	}
	return id, nil
}

// Recent returns at most limit entries, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]domain.PromptLogEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := r.store.Query(ctx, domain.TablePromptLogs, domain.Query{
		OrderBy: domain.FieldCreatedAt,
		Desc:    true,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("promptlog: recent: %w", err)
	}
	entries := make([]domain.PromptLogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, fromRecord(row))
	}
	return entries, nil
}

// History returns the effective prompts of the most recent limit entries,
// newest first: the refined prompt when present, else the original. Blank
// entries are dropped.
func (r *Repository) History(ctx context.Context, limit int) ([]string, error) {
	entries, err := r.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return EffectivePrompts(entries), nil
}

// EffectivePrompts maps entries to their effective prompt and drops blanks.
func EffectivePrompts(entries []domain.PromptLogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		p := strings.TrimSpace(e.RefinedPrompt)
		if p == "" {
			p = strings.TrimSpace(e.OriginalPrompt)
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fromRecord(rec domain.Record) domain.PromptLogEntry {
	e := domain.PromptLogEntry{
		ID:             rec.String(domain.FieldID),
		OriginalPrompt: rec.String(colOriginal),
		RefinedPrompt:  rec.String(colRefined),
		Reasoning:      rec.String(colReasoning),
		Tags:           decodeTags(rec.String(colTags)),
	}
	switch ts := rec[domain.FieldCreatedAt].(type) {
	case time.Time:
		e.Timestamp = ts
	case string:
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return e
}

// encodeTags stores tags as a JSON array so a tag may contain any character.
func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return ""
	}
	return string(b)
}

// decodeTags reads a JSON array, falling back to the comma-joined form
// written by earlier versions.
func decodeTags(raw string) []string {
	tags := []string{}
	if raw == "" {
		return tags
	}
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &tags); err == nil {
			return tags
		}
		tags = []string{}
	}
	return append(tags, strings.Split(raw, ",")...)
}
