package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/triage-ai/lark-agent/internal/config"
	"github.com/triage-ai/lark-agent/internal/engine"
)

var conversation = []engine.Message{
	{Role: engine.RoleSystem, Content: "you are a Lark assistant"},
	{Role: engine.RoleSystem, Content: "write in Thai"},
	{Role: engine.RoleUser, Content: "list tables"},
	{Role: engine.RoleAssistant, ToolCalls: []engine.ToolCall{
		{ID: "call_1", Name: "bitable_v1_appTable_list", Arguments: `{"app_token":"bascn1"}`},
		{ID: "call_2", Name: "bitable_v1_appTable_list", Arguments: `not json`},
	}},
	{Role: engine.RoleTool, ToolCallID: "call_1", Name: "bitable_v1_appTable_list", Content: `{"items":[]}`},
	{Role: engine.RoleTool, ToolCallID: "call_2", Name: "bitable_v1_appTable_list", Content: "denied: table not allowed"},
	{Role: engine.RoleAssistant, Content: "done"},
}

var tools = []engine.ToolSpec{
	{Name: "bitable_v1_appTable_list", Description: "list tables", Schema: map[string]any{
		"type":       "object",
		"properties": map[string]any{"app_token": map[string]any{"type": "string"}},
	}},
	{Name: "im_v1_message_create", Description: "send a message"},
}

func TestNew(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  bool
	}{
		{"openai", false},
		{"anthropic", false},
		{"gemini", true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			inv, err := New(config.LLMConfig{Provider: tt.provider}, nil, zap.NewNop())
			if tt.wantErr {
				if !errors.Is(err, config.ErrUnknownLLMProvider) {
					t.Fatalf("err = %v, want ErrUnknownLLMProvider", err)
				}
				return
			}
			if err != nil || inv == nil {
				t.Fatalf("New() = %v, %v", inv, err)
			}
		})
	}
}

func TestFunctionParameters(t *testing.T) {
	got := functionParameters(nil)
	if got["type"] != "object" {
		t.Errorf("type = %v, want object", got["type"])
	}
	if _, ok := got["properties"].(map[string]any); !ok {
		t.Errorf("properties = %v, want empty object", got["properties"])
	}

	in := map[string]any{"type": "object", "required": []any{"x"}}
	got = functionParameters(in)
	if _, ok := in["properties"]; ok {
		t.Error("input schema was mutated")
	}
	if got["required"] == nil {
		t.Error("existing keys should be kept")
	}
}

func TestRawArguments(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"", "{}"},
		{"not json", "{}"},
		{"[1,2]", "{}"},
	}
	for _, tt := range tests {
		if got := string(rawArguments(tt.in)); got != tt.want {
			t.Errorf("rawArguments(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestToChatMessages(t *testing.T) {
	msgs := toChatMessages(conversation)
	if len(msgs) != len(conversation) {
		t.Fatalf("len = %d, want %d", len(msgs), len(conversation))
	}
	if msgs[0].OfSystem == nil || msgs[2].OfUser == nil || msgs[4].OfTool == nil {
		t.Error("roles were not mapped")
	}
	assistant := msgs[3].OfAssistant
	if assistant == nil {
		t.Fatal("msgs[3] is not an assistant message")
	}
	if len(assistant.ToolCalls) != 2 {
		t.Fatalf("tool calls = %d, want 2", len(assistant.ToolCalls))
	}
	if got := assistant.ToolCalls[1].OfFunction.Function.Arguments; got != "{}" {
		t.Errorf("malformed arguments = %q, want {}", got)
	}
	if msgs[6].OfAssistant == nil {
		t.Error("plain assistant reply not mapped")
	}
}

func TestToAnthropicMessages(t *testing.T) {
	system, msgs := toAnthropicMessages(conversation)
	if system != "you are a Lark assistant\n\nwrite in Thai" {
		t.Errorf("system = %q", system)
	}
	// user, assistant(tool_use x2), user(tool_result x2), assistant
	if len(msgs) != 4 {
		t.Fatalf("len = %d, want 4", len(msgs))
	}
	if len(msgs[1].Content) != 2 || msgs[1].Content[0].OfToolUse == nil {
		t.Errorf("assistant turn = %+v", msgs[1].Content)
	}
	results := msgs[2].Content
	if len(results) != 2 || results[0].OfToolResult == nil || results[1].OfToolResult == nil {
		t.Fatalf("tool results = %+v", results)
	}
	if results[1].OfToolResult.IsError.Value != true {
		t.Error("denied result should be flagged as error")
	}
}

func TestToAnthropicTools_KeepsRequired(t *testing.T) {
	var decoded map[string]any
	raw := `{"type":"object","properties":{"path":{"type":"object"},"data":{"type":"object"}},"required":["path","data"]}`
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	specs := []engine.ToolSpec{
		{Name: "bitable_v1_appTableRecord_create", Schema: decoded},
		{Name: "im_v1_message_create", Schema: map[string]any{"type": "object", "required": []string{"receive_id"}}},
		tools[1],
	}

	converted := toAnthropicTools(specs)

	want := [][]string{{"path", "data"}, {"receive_id"}, nil}
	for i, tool := range converted {
		got := tool.OfTool.InputSchema.Required
		if strings.Join(got, ",") != strings.Join(want[i], ",") {
			t.Errorf("%s required = %v, want %v", specs[i].Name, got, want[i])
		}
	}

	body, err := json.Marshal(converted[0].OfTool.InputSchema)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(body), `"required":["path","data"]`) {
		t.Errorf("required missing from wire schema: %s", body)
	}
}

func TestOpenAIInvoke(t *testing.T) {
	var body map[string]any
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_9",
						"type": "function",
						"function": {"name": "bitable_v1_appTable_list", "arguments": "{\"page_size\":20}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIKey: "sk-test", APIURL: srv.URL, Model: "gpt-4o"}, srv.Client(), zap.NewNop())
	reply, err := o.Invoke(context.Background(), conversation[:3], tools)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(reply.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(reply.ToolCalls))
	}
	tc := reply.ToolCalls[0]
	if tc.ID != "call_9" || tc.Name != "bitable_v1_appTable_list" || tc.Arguments != `{"page_size":20}` {
		t.Errorf("tool call = %+v", tc)
	}
	if body["model"] != "gpt-4o" {
		t.Errorf("model = %v", body["model"])
	}
	if sent, _ := body["tools"].([]any); len(sent) != 2 {
		t.Errorf("tools sent = %d, want 2", len(sent))
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestOpenAIInvokeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIKey: "sk-test", APIURL: srv.URL, Model: "gpt-4o"}, srv.Client(), zap.NewNop())
	if _, err := o.Invoke(context.Background(), conversation[:3], nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestAnthropicInvoke(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("path = %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [
				{"type": "text", "text": "checking"},
				{"type": "tool_use", "id": "toolu_1", "name": "im_v1_message_create", "input": {"text": "hi"}}
			],
			"stop_reason": "tool_use",
			"stop_sequence": null,
			"usage": {"input_tokens": 20, "output_tokens": 8}
		}`)
	}))
	defer srv.Close()

	a := NewAnthropic(AnthropicConfig{APIKey: "key", APIURL: srv.URL, Model: "claude-sonnet-4-20250514"}, srv.Client(), zap.NewNop())
	reply, err := a.Invoke(context.Background(), conversation, tools)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if reply.Text != "checking" {
		t.Errorf("text = %q", reply.Text)
	}
	if len(reply.ToolCalls) != 1 || reply.ToolCalls[0].Name != "im_v1_message_create" {
		t.Fatalf("tool calls = %+v", reply.ToolCalls)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(reply.ToolCalls[0].Arguments), &args); err != nil || args["text"] != "hi" {
		t.Errorf("arguments = %q", reply.ToolCalls[0].Arguments)
	}
	if body["max_tokens"] != float64(defaultMaxTokens) {
		t.Errorf("max_tokens = %v", body["max_tokens"])
	}
	if sys, _ := body["system"].([]any); len(sys) != 1 {
		t.Errorf("system = %v", body["system"])
	}
}
