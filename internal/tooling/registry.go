package tooling

import (
	"encoding/json"
	"errors"
	"fmt"

	"memoire/internal/domain"
)

// Registry errors.
var (
	ErrDuplicateTool = errors.New("tooling: tool already registered")
	ErrToolNameEmpty = errors.New("tooling: tool name must not be empty")
)

// Registry is the static tool catalogue. It is built once at startup and never
// mutated afterwards; Definitions preserves construction order.
type Registry struct {
	defs   []domain.ToolDefinition
	byName map[string]domain.ToolDefinition
}

// NewRegistry builds a registry from defs. A duplicate or empty name is a
// configuration error.
func NewRegistry(defs ...domain.ToolDefinition) (*Registry, error) {
	r := &Registry{byName: make(map[string]domain.ToolDefinition, len(defs))}
	for _, d := range defs {
		if d.Name == "" {
			return nil, ErrToolNameEmpty
		}
		if _, exists := r.byName[d.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTool, d.Name)
		}
		r.byName[d.Name] = d
		r.defs = append(r.defs, d)
	}
	return r, nil
}

// DefaultRegistry returns the registry of every built-in tool. It panics on a
// configuration error so the process fails at startup rather than at call time.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(BuiltinDefinitions()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Definitions returns a copy of every tool definition, in registration order.
func (r *Registry) Definitions() []domain.ToolDefinition {
	out := make([]domain.ToolDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Lookup returns the definition registered under name. The planner uses it to
// map the oracle's tool names onto ToolKind.
func (r *Registry) Lookup(name string) (domain.ToolDefinition, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// builtinTool couples a kind with its description and input struct.
type builtinTool struct {
	kind        domain.ToolKind
	description string
	input       interface{}
}

var builtinTools = []builtinTool{
	{
		kind:        domain.ToolAddChapter,
		description: "Add a new chapter to the thesis outline. Use when the user asks to create or add a chapter or section.",
		input:       &AddChapterInput{},
	},
	{
		kind:        domain.ToolQuickCapture,
		description: "Capture a quick note or idea verbatim. Use for thoughts, reminders or snippets the user wants to keep.",
		input:       &QuickCaptureInput{},
	},
	{
		kind:        domain.ToolAddDailyObjective,
		description: "Record an objective for a given day (today when no date is given).",
		input:       &AddDailyObjectiveInput{},
	},
	{
		kind:        domain.ToolAddSource,
		description: "Add a bibliographic source (book, article, web page, thesis) to the bibliography, optionally linked to a chapter id.",
		input:       &AddSourceInput{},
	},
	{
		kind:        domain.ToolAddTask,
		description: "Create a task on the to-do list, optionally linked to a chapter id and a due date.",
		input:       &AddTaskInput{},
	},
	{
		kind:        domain.ToolRefinePrompt,
		description: "Improve a prompt the user plans to send to an AI assistant, using their previous refined prompts as context.",
		input:       &RefinePromptInput{},
	},
}

// outputSchema is shared by every built-in tool.
var outputSchema = GenerateSchema(&ToolOutputSchema{})

// BuiltinDefinitions returns the definitions of every built-in tool.
func BuiltinDefinitions() []domain.ToolDefinition {
	defs := make([]domain.ToolDefinition, 0, len(builtinTools))
	for _, t := range builtinTools {
		defs = append(defs, domain.ToolDefinition{
			Kind:         t.kind,
			Name:         t.kind.String(),
			Description:  t.description,
			InputSchema:  json.RawMessage(GenerateSchema(t.input)),
			OutputSchema: json.RawMessage(outputSchema),
		})
	}
	return defs
}
