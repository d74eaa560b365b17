package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// =============================================================================
// Core Configuration
// =============================================================================

type Config struct {
	Gateway   GatewayConfig    `json:"gateway" yaml:"gateway"`
	Agent     AgentConfig      `json:"agent" yaml:"agent"`
	Store     StoreConfig      `json:"store" yaml:"store"`
	Retry     RetryConfig      `json:"retry" yaml:"retry"`         // oracle calls
	ToolRetry RetryConfig      `json:"toolRetry" yaml:"toolRetry"` // tool invocations; MaxRetries 0 disables
	Refine    RefineConfig     `json:"refine" yaml:"refine"`
	Infra     InfraConfig      `json:"infra" yaml:"infra"`
	Schedules []ScheduleConfig `json:"schedules,omitempty" yaml:"schedules,omitempty"`
}

// RetryConfig controls retry behaviour for external calls (oracle, tool invocations).
type RetryConfig struct {
	MaxRetries     int `json:"maxRetries" yaml:"maxRetries"`         // Maximum retry attempts (0 = no retries)
	InitialBackoff int `json:"initialBackoff" yaml:"initialBackoff"` // Initial backoff in milliseconds
	MaxBackoff     int `json:"maxBackoff" yaml:"maxBackoff"`         // Maximum backoff in milliseconds
	Multiplier     int `json:"multiplier" yaml:"multiplier"`         // Backoff multiplier (e.g. 2 for exponential doubling)
}

type GatewayConfig struct {
	Port int        `json:"port" yaml:"port"`
	Auth AuthConfig `json:"auth" yaml:"auth"`
}

type AuthConfig struct {
	AuthToken string `json:"authToken,omitempty" yaml:"authToken,omitempty"` // When set, gateway requires Authorization: Bearer <authToken>
}

type AgentConfig struct {
	Provider       string           `json:"provider" yaml:"provider"` // "local" | "openai" | "anthropic" | "gemini" | "openrouter" | "ollama"
	Model          string           `json:"model" yaml:"model"`
	BaseURL        string           `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	Language       string           `json:"language" yaml:"language"`             // "fr" | "en"
	RequestTimeout int              `json:"requestTimeout" yaml:"requestTimeout"` // planning deadline in seconds, 0 = none
	Fallbacks      []FallbackConfig `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty"`
}

// FallbackConfig describes an alternative oracle tried when the primary fails.
type FallbackConfig struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
}

type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "memory" | "sqlite" | "libsql" | "postgres"
	URL    string `json:"url" yaml:"url"`
	Owner  string `json:"owner,omitempty" yaml:"owner,omitempty"` // tenant scoping; empty disables
}

type RefineConfig struct {
	HistoryLimit int    `json:"historyLimit" yaml:"historyLimit"`
	TokenBudget  int    `json:"tokenBudget,omitempty" yaml:"tokenBudget,omitempty"` // 0 disables token trimming
	Encoding     string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
}

type InfraConfig struct {
	LogFormat string `json:"logFormat" yaml:"logFormat"` // "json" | "text"
	LogLevel  string `json:"logLevel" yaml:"logLevel"`
}

// ScheduleConfig submits Instruction to the agent on every Cron tick.
type ScheduleConfig struct {
	Name        string `json:"name" yaml:"name"`
	Cron        string `json:"cron" yaml:"cron"`
	Instruction string `json:"instruction" yaml:"instruction"`
}

// =============================================================================
// Tools
// =============================================================================

// ToolKind is the closed set of tools the agent can invoke.
type ToolKind int

const (
	ToolUnknown ToolKind = iota
	ToolAddChapter
	ToolQuickCapture
	ToolAddDailyObjective
	ToolAddSource
	ToolAddTask
	ToolRefinePrompt
)

var toolKindNames = map[ToolKind]string{
	ToolAddChapter:        "add_chapter",
	ToolQuickCapture:      "quick_capture",
	ToolAddDailyObjective: "add_daily_objective",
	ToolAddSource:         "add_source",
	ToolAddTask:           "add_task",
	ToolRefinePrompt:      "refine_prompt",
}

// ToolKinds returns every known kind in declaration order.
func ToolKinds() []ToolKind {
	kinds := make([]ToolKind, 0, len(toolKindNames))
	for k := range toolKindNames {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// String returns the function-calling name of the kind ("unknown" for ToolUnknown).
func (k ToolKind) String() string {
	if n, ok := toolKindNames[k]; ok {
		return n
	}
	return "unknown"
}

// ToolDefinition describes a tool to the oracle. Description is model-facing only.
type ToolDefinition struct {
	Kind         ToolKind        `json:"-"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"input_schema"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
}

// ToolInvocationRequest is one tool call proposed by the oracle. Input is not
// validated until the executor runs.
type ToolInvocationRequest struct {
	Kind     ToolKind        `json:"-"`
	ToolName string          `json:"toolName"`
	Input    json.RawMessage `json:"input"`
}

// ToolOutput is what every executor returns. Fields carries the entity id
// (e.g. "chapterId") and any tool-specific values; it is flattened on the wire.
type ToolOutput struct {
	Success   bool
	Message   string
	Fields    map[string]string
	Retryable bool // store failure that may succeed on a later attempt
}

// MarshalJSON flattens Fields next to success and message.
func (o ToolOutput) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(o.Fields)+2)
	for k, v := range o.Fields {
		m[k] = v
	}
	m["success"] = o.Success
	m["message"] = o.Message
	return json.Marshal(m)
}

// UnmarshalJSON reverses MarshalJSON; non-string extra values are dropped.
func (o *ToolOutput) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = ToolOutput{}
	for k, v := range raw {
		switch k {
		case "success":
			o.Success, _ = v.(bool)
		case "message":
			o.Message, _ = v.(string)
		default:
			if s, ok := v.(string); ok {
				if o.Fields == nil {
					o.Fields = make(map[string]string)
				}
				o.Fields[k] = s
			}
		}
	}
	return nil
}

// Failure builds a failed ToolOutput.
func Failure(message string) ToolOutput {
	return ToolOutput{Success: false, Message: message}
}

// ToolInvocationResult pairs an invocation with its executor output.
type ToolInvocationResult struct {
	ToolName string          `json:"toolName"`
	Input    json.RawMessage `json:"input"`
	Output   ToolOutput      `json:"output"`
	EntityID string          `json:"entityId,omitempty"`
}

// =============================================================================
// Agent API
// =============================================================================

type AgentRequest struct {
	UserRequest string `json:"userRequest"`
}

// AgentResponse is the single reply to an AgentRequest. ResponseMessage is
// never empty; ActionsTaken is nil when no invocation ran.
type AgentResponse struct {
	ResponseMessage string                 `json:"responseMessage"`
	ActionsTaken    []ToolInvocationResult `json:"actionsTaken,omitempty"`
	Degraded        bool                   `json:"degraded,omitempty"`
}

// Refinement is the output of the prompt refinement engine.
type Refinement struct {
	RefinedPrompt string `json:"refinedPrompt"`
	Reasoning     string `json:"reasoning"`
}

// =============================================================================
// Oracle protocol
// =============================================================================

// FinishReason reports why the oracle stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishOther         FinishReason = "other"
)

// Abnormal reports whether generation was cut short.
func (r FinishReason) Abnormal() bool {
	return r != FinishStop && r != FinishToolCalls
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Tools        []ToolDefinition
}

type ToolCall struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type Completion struct {
	Message      string
	ToolCalls    []ToolCall
	FinishReason FinishReason
}

// =============================================================================
// Workspace records
// =============================================================================

// Table names in the persistent store.
const (
	TableChapters   = "chapters"
	TableNotes      = "notes"
	TableObjectives = "daily_objectives"
	TableSources    = "sources"
	TableTasks      = "tasks"
	TablePromptLogs = "prompt_logs"
)

// Reserved record keys managed by the store.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldOwner     = "owner"
)

// Record is one row of a table, keyed by column name.
type Record map[string]any

// String returns the string value of key, or "" when absent or not a string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Query is the subset of relational features the agent relies on.
type Query struct {
	Filter  map[string]any // equality only
	OrderBy string
	Desc    bool
	Limit   int // 0 = unlimited
}

// PromptLogEntry pairs an original prompt with its refinement.
type PromptLogEntry struct {
	ID             string    `json:"id"`
	OriginalPrompt string    `json:"originalPrompt"`
	RefinedPrompt  string    `json:"refinedPrompt,omitempty"`
	Reasoning      string    `json:"reasoning,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Tags           []string  `json:"tags"`
}

// Prompt log tags.
const (
	TagAgent  = "agent"
	TagManual = "manual"
	TagUser   = "user"
)
