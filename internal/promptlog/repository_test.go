package promptlog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoire/internal/domain"
	"memoire/internal/store"
)

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	t := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newRepo() (*Repository, *store.Memory) {
	mem := store.NewMemory()
	r := NewRepository(mem)
	r.now = tickingClock()
	return r, mem
}

type failingStore struct{}

func (failingStore) Insert(context.Context, string, domain.Record) (string, error) {
	return "", errors.New("disk full")
}
func (failingStore) Query(context.Context, string, domain.Query) ([]domain.Record, error) {
	return nil, errors.New("disk full")
}

// =============================================================================
// Append
// =============================================================================

func TestRepository_Append_ShouldPersistEntryWithTags(t *testing.T) {
	r, mem := newRepo()
	ctx := context.Background()

	id, err := r.Append(ctx, domain.PromptLogEntry{
		OriginalPrompt: "résume",
		RefinedPrompt:  "Résume le chapitre 2.",
		Reasoning:      "plus précis",
		Tags:           []string{domain.TagUser, "thèse"},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, mem.Count(domain.TablePromptLogs))

	entries, err := r.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, []string{domain.TagUser, "thèse"}, entries[0].Tags)
	assert.Equal(t, "plus précis", entries[0].Reasoning)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestRepository_Append_WhenTagContainsComma_ShouldKeepItWhole(t *testing.T) {
	r, _ := newRepo()
	ctx := context.Background()

	_, err := r.Append(ctx, domain.PromptLogEntry{
		OriginalPrompt: "plan",
		Tags:           []string{domain.TagManual, "chapitre 2, partie B"},
	})
	require.NoError(t, err)

	entries, err := r.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{domain.TagManual, "chapitre 2, partie B"}, entries[0].Tags)
}

func TestRepository_Recent_WhenTagsCommaJoined_ShouldSplitThem(t *testing.T) {
	r, mem := newRepo()
	ctx := context.Background()
	_, err := mem.Insert(ctx, domain.TablePromptLogs, domain.Record{
		colOriginal:           "ancien",
		colTags:               "user,thèse",
		domain.FieldCreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	entries, err := r.Recent(ctx, 1)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{domain.TagUser, "thèse"}, entries[0].Tags)
}

func TestRepository_Append_WhenOriginalBlank_ShouldReturnErrEmptyPrompt(t *testing.T) {
	r, mem := newRepo()
	_, err := r.Append(context.Background(), domain.PromptLogEntry{OriginalPrompt: "  ", RefinedPrompt: "x"})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Zero(t, mem.Count(domain.TablePromptLogs))
}

func TestRepository_Append_WhenStoreFails_ShouldWrapError(t *testing.T) {
	_, err := NewRepository(failingStore{}).Append(context.Background(), domain.PromptLogEntry{OriginalPrompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "promptlog: append")
}

// =============================================================================
// Recent / History
// =============================================================================

func TestRepository_Recent_ShouldReturnNewestFirstWithinLimit(t *testing.T) {
	r, _ := newRepo()
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, err := r.Append(ctx, domain.PromptLogEntry{OriginalPrompt: fmt.Sprintf("p%d", i)})
		require.NoError(t, err)
	}

	entries, err := r.Recent(ctx, 3)

	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "p5", entries[0].OriginalPrompt)
	assert.Equal(t, "p3", entries[2].OriginalPrompt)
	assert.Empty(t, entries[0].Tags)
	assert.NotNil(t, entries[0].Tags)
}

func TestRepository_Recent_WhenLimitNotPositive_ShouldUseDefault(t *testing.T) {
	r, _ := newRepo()
	ctx := context.Background()
	for i := 0; i < DefaultHistoryLimit+2; i++ {
		_, _ = r.Append(ctx, domain.PromptLogEntry{OriginalPrompt: "p"})
	}
	entries, err := r.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, DefaultHistoryLimit)
}

func TestRepository_History_ShouldPreferRefinedPrompt(t *testing.T) {
	r, _ := newRepo()
	ctx := context.Background()
	_, _ = r.Append(ctx, domain.PromptLogEntry{OriginalPrompt: "ancien"})
	_, _ = r.Append(ctx, domain.PromptLogEntry{OriginalPrompt: "brut", RefinedPrompt: "Version raffinée"})

	history, err := r.History(ctx, 10)

	require.NoError(t, err)
	assert.Equal(t, []string{"Version raffinée", "ancien"}, history)
}

func TestRepository_History_WhenStoreFails_ShouldReturnError(t *testing.T) {
	_, err := NewRepository(failingStore{}).History(context.Background(), 5)
	assert.Error(t, err)
}

func TestEffectivePrompts_ShouldDropBlankEntries(t *testing.T) {
	got := EffectivePrompts([]domain.PromptLogEntry{
		{OriginalPrompt: "  "},
		{OriginalPrompt: "a", RefinedPrompt: "  "},
		{OriginalPrompt: "b", RefinedPrompt: "B"},
	})
	assert.Equal(t, []string{"a", "B"}, got)
}

func TestRepository_ShouldWorkOverSQLStore(t *testing.T) {
	ctx := context.Background()
	s, closer, err := store.Open(ctx, domain.StoreConfig{Driver: "sqlite", URL: ":memory:"})
	require.NoError(t, err)
	defer closer.Close()

	r := NewRepository(s)
	r.now = tickingClock()
	_, _ = r.Append(ctx, domain.PromptLogEntry{OriginalPrompt: "premier", Tags: []string{domain.TagManual}})
	_, _ = r.Append(ctx, domain.PromptLogEntry{OriginalPrompt: "second", RefinedPrompt: "Second affiné"})

	entries, err := r.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].OriginalPrompt)
	assert.Equal(t, []string{domain.TagManual}, entries[1].Tags)
	assert.True(t, entries[0].Timestamp.After(entries[1].Timestamp))
}

func TestNewRepository_WhenNilStore_ShouldPanic(t *testing.T) {
	assert.Panics(t, func() { NewRepository(nil) })
}
