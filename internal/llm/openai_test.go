package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoire/internal/domain"
)

var testTools = []domain.ToolDefinition{{
	Name:        "add_chapter",
	Description: "Add a chapter",
	InputSchema: json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`),
}}

// newOpenAIServer serves body on /chat/completions and captures the request.
func newOpenAIServer(t *testing.T, status int, body string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIOracle_Complete_ShouldReturnToolCallsInOrder(t *testing.T) {
	var captured map[string]any
	srv := newOpenAIServer(t, http.StatusOK, `{
		"id": "c1", "object": "chat.completion", "model": "gpt-4o",
		"choices": [{
			"index": 0,
			"finish_reason": "tool_calls",
			"message": {
				"role": "assistant",
				"content": "J'ajoute les chapitres.",
				"tool_calls": [
					{"id": "t1", "type": "function", "function": {"name": "add_chapter", "arguments": "{\"name\":\"Introduction\"}"}},
					{"id": "t2", "type": "function", "function": {"name": "add_chapter", "arguments": "{\"name\":\"Conclusion\"}"}}
				]
			}
		}]
	}`, &captured)

	o := NewOpenAIOracle("key", "gpt-4o", srv.URL)
	out, err := o.Complete(context.Background(), domain.CompletionRequest{
		SystemPrompt: "system",
		UserPrompt:   "ajoute intro et conclusion",
		Tools:        testTools,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.FinishToolCalls, out.FinishReason)
	assert.Equal(t, "J'ajoute les chapitres.", out.Message)
	require.Len(t, out.ToolCalls, 2)
	assert.Equal(t, "add_chapter", out.ToolCalls[0].Name)
	assert.JSONEq(t, `{"name":"Introduction"}`, string(out.ToolCalls[0].Input))
	assert.JSONEq(t, `{"name":"Conclusion"}`, string(out.ToolCalls[1].Input))

	assert.Equal(t, "gpt-4o", captured["model"])
	msgs, _ := captured["messages"].([]any)
	assert.Len(t, msgs, 2, "system and user messages")
	tools, _ := captured["tools"].([]any)
	assert.Len(t, tools, 1)
}

func TestOpenAIOracle_Complete_WhenLengthStop_ShouldReportAbnormalFinish(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusOK, `{
		"choices": [{"index": 0, "finish_reason": "length", "message": {"role": "assistant", "content": "tronq"}}]
	}`, nil)

	out, err := NewOpenAIOracle("key", "m", srv.URL).Complete(context.Background(), domain.CompletionRequest{UserPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, domain.FinishLength, out.FinishReason)
	assert.True(t, out.FinishReason.Abnormal())
}

func TestOpenAIOracle_Complete_WhenAPIError_ShouldReturnErrorWithStatus(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, nil)

	_, err := NewOpenAIOracle("key", "m", srv.URL).Complete(context.Background(), domain.CompletionRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestOpenAIOracle_Complete_WhenNoChoices_ShouldReturnError(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusOK, `{"choices": []}`, nil)

	_, err := NewOpenAIOracle("key", "m", srv.URL).Complete(context.Background(), domain.CompletionRequest{UserPrompt: "x"})
	assert.ErrorContains(t, err, "no choices")
}

func TestOpenAIOracle_Complete_WhenContextCanceled_ShouldReturnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOpenAIOracle("key", "m", "http://127.0.0.1:0").Complete(ctx, domain.CompletionRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenAIOracle_Complete_WhenSchemaInvalid_ShouldReturnError(t *testing.T) {
	tools := []domain.ToolDefinition{{Name: "bad", InputSchema: json.RawMessage(`not json`)}}
	_, err := NewOpenAIOracle("key", "m", "http://127.0.0.1:0").Complete(context.Background(), domain.CompletionRequest{Tools: tools})
	assert.ErrorContains(t, err, "decode tool schema")
}
