package tooling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"memoire/internal/domain"
	"memoire/internal/promptlog"
	"memoire/internal/retry"
)

// Output field names carrying the created entity id.
const (
	KeyChapterID   = "chapterId"
	KeyNoteID      = "noteId"
	KeyObjectiveID = "objectiveId"
	KeySourceID    = "sourceId"
	KeyTaskID      = "taskId"
	KeyLogID       = "logId"
)

// Option configures Executors.
type Option func(*Executors)

// WithLogger sets a structured logger. If l is nil it is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executors) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the clock used for default dates.
func WithClock(now func() time.Time) Option {
	return func(e *Executors) {
		if now != nil {
			e.now = now
		}
	}
}

// WithHistoryLimit sets how many prompt logs feed the refine tool.
func WithHistoryLimit(n int) Option {
	return func(e *Executors) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

// WithLanguage selects the language of confirmation messages ("fr" or "en").
func WithLanguage(lang string) Option {
	return func(e *Executors) {
		e.msg = catalogFor(lang)
	}
}

// Executors holds one executor per ToolKind. Every executor validates its raw
// input, performs at most one store operation and reports the outcome as a
// domain.ToolOutput. Executors never return an error or panic on bad input.
type Executors struct {
	store        domain.Store
	prompts      *promptlog.Repository
	refiner      domain.Refiner
	schemas      map[domain.ToolKind]*jsonschema.Schema
	historyLimit int
	now          func() time.Time
	msg          catalog
	logger       *slog.Logger
}

// NewExecutors wires executors to store and refiner. Panics if either is nil
// or a built-in schema fails to compile.
func NewExecutors(store domain.Store, refiner domain.Refiner, opts ...Option) *Executors {
	if store == nil {
		panic("tooling: store must not be nil")
	}
	if refiner == nil {
		panic("tooling: refiner must not be nil")
	}
	e := &Executors{
		store:        store,
		prompts:      promptlog.NewRepository(store),
		refiner:      refiner,
		schemas:      make(map[domain.ToolKind]*jsonschema.Schema),
		historyLimit: promptlog.DefaultHistoryLimit,
		now:          time.Now,
		msg:          catalogFor("fr"),
	}
	for _, d := range BuiltinDefinitions() {
		s, err := CompileSchema(d.Name, string(d.InputSchema))
		if err != nil {
			panic(fmt.Sprintf("tooling: schema for %s: %v", d.Name, err))
		}
		e.schemas[d.Kind] = s
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// log returns the logger, falling back to the default slog logger.
func (e *Executors) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

// input is implemented by every typed tool input.
type input interface {
	normalize() error
}

// decode validates raw against the kind's schema, unmarshals it into dst and
// runs the input's own checks. The returned output is non-nil on failure.
func (e *Executors) decode(kind domain.ToolKind, raw json.RawMessage, dst input) *domain.ToolOutput {
	fail := func(err error) *domain.ToolOutput {
		out := domain.Failure(fmt.Sprintf(e.msg.invalidInput, kind, err))
		return &out
	}
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := validate(e.schemas[kind], raw); err != nil {
		return fail(err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fail(err)
	}
	if err := dst.normalize(); err != nil {
		return fail(err)
	}
	return nil
}

// insert performs the single store write of an executor.
func (e *Executors) insert(ctx context.Context, kind domain.ToolKind, table string, rec domain.Record, key, confirmation string) domain.ToolOutput {
	id, err := e.store.Insert(ctx, table, rec)
	if err != nil {
		e.log().Warn("store insert failed", "tool", kind.String(), "table", table, "error", err)
		out := domain.Failure(fmt.Sprintf(e.msg.storeFailed, err))
		out.Retryable = retry.IsRetryable(err)
		return out
	}
	return domain.ToolOutput{
		Success: true,
		Message: confirmation,
		Fields:  map[string]string{key: id},
	}
}

// AddChapter creates a chapter record.
func (e *Executors) AddChapter(ctx context.Context, raw json.RawMessage) domain.ToolOutput {
	var in AddChapterInput
	if out := e.decode(domain.ToolAddChapter, raw, &in); out != nil {
		return *out
	}
	rec := domain.Record{"name": in.Name}
	if in.Position > 0 {
		rec["position"] = in.Position
	}
	return e.insert(ctx, domain.ToolAddChapter, domain.TableChapters, rec, KeyChapterID,
		fmt.Sprintf(e.msg.chapterAdded, in.Name))
}

// QuickCapture stores a note.
func (e *Executors) QuickCapture(ctx context.Context, raw json.RawMessage) domain.ToolOutput {
	var in QuickCaptureInput
	if out := e.decode(domain.ToolQuickCapture, raw, &in); out != nil {
		return *out
	}
	rec := domain.Record{"content": in.Content, "tags": strings.Join(in.Tags, ",")}
	return e.insert(ctx, domain.ToolQuickCapture, domain.TableNotes, rec, KeyNoteID, e.msg.noteCaptured)
}

// AddDailyObjective records an objective for the given day, today by default.
func (e *Executors) AddDailyObjective(ctx context.Context, raw json.RawMessage) domain.ToolOutput {
	var in AddDailyObjectiveInput
	if out := e.decode(domain.ToolAddDailyObjective, raw, &in); out != nil {
		return *out
	}
	if in.Date == "" {
		in.Date = e.now().Format(dateLayout)
	}
	rec := domain.Record{"title": in.Title, "day": in.Date}
	return e.insert(ctx, domain.ToolAddDailyObjective, domain.TableObjectives, rec, KeyObjectiveID,
		fmt.Sprintf(e.msg.objectiveAdded, in.Title, in.Date))
}

// AddSource records a bibliographic source, linked to a chapter when given.
func (e *Executors) AddSource(ctx context.Context, raw json.RawMessage) domain.ToolOutput {
	var in AddSourceInput
	if out := e.decode(domain.ToolAddSource, raw, &in); out != nil {
		return *out
	}
	rec := domain.Record{
		"title":      in.Title,
		"authors":    strings.Join(in.Authors, "; "),
		"kind":       in.Kind,
		"url":        in.URL,
		"chapter_id": in.ChapterID,
	}
	if in.Year > 0 {
		rec["year"] = in.Year
	}
	return e.insert(ctx, domain.ToolAddSource, domain.TableSources, rec, KeySourceID,
		fmt.Sprintf(e.msg.sourceAdded, in.Title))
}

// AddTask creates a task, linked to a chapter when given.
func (e *Executors) AddTask(ctx context.Context, raw json.RawMessage) domain.ToolOutput {
	var in AddTaskInput
	if out := e.decode(domain.ToolAddTask, raw, &in); out != nil {
		return *out
	}
	rec := domain.Record{
		"title":      in.Title,
		"chapter_id": in.ChapterID,
		"due_date":   in.DueDate,
		"done":       false,
	}
	return e.insert(ctx, domain.ToolAddTask, domain.TableTasks, rec, KeyTaskID,
		fmt.Sprintf(e.msg.taskAdded, in.Title))
}

// RefinePrompt refines a prompt using the recent prompt log as history and
// logs the result tagged as agent-originated. A failed history query degrades
// to an empty history.
func (e *Executors) RefinePrompt(ctx context.Context, raw json.RawMessage) domain.ToolOutput {
	var in RefinePromptInput
	if out := e.decode(domain.ToolRefinePrompt, raw, &in); out != nil {
		return *out
	}

	history, err := e.prompts.History(ctx, e.historyLimit)
	if err != nil {
		e.log().Warn("prompt history unavailable, refining without it", "error", err)
		history = nil
	}

	ref, err := e.refiner.Refine(ctx, in.Prompt, history)
	if err != nil {
		return domain.Failure(fmt.Sprintf(e.msg.refineFailed, err))
	}

	id, err := e.prompts.Append(ctx, domain.PromptLogEntry{
		OriginalPrompt: in.Prompt,
		RefinedPrompt:  ref.RefinedPrompt,
		Reasoning:      ref.Reasoning,
		Timestamp:      e.now(),
		Tags:           []string{domain.TagAgent},
	})
	if err != nil {
		e.log().Warn("prompt log insert failed", "error", err)
		out := domain.Failure(fmt.Sprintf(e.msg.storeFailed, err))
		out.Retryable = retry.IsRetryable(err)
		return out
	}
	return domain.ToolOutput{
		Success: true,
		Message: fmt.Sprintf(e.msg.promptRefined, ref.RefinedPrompt),
		Fields: map[string]string{
			KeyLogID:        id,
			"refinedPrompt": ref.RefinedPrompt,
			"reasoning":     ref.Reasoning,
		},
	}
}
