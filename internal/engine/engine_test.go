package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/triage-ai/lark-agent/internal/config"
	"github.com/triage-ai/lark-agent/internal/storage"
	"go.uber.org/zap"
)

func TestToolGate(t *testing.T) {
	lock := config.BaseLock{Enabled: true, BaseID: "bascnLOCK"}
	known := map[string]bool{
		"bitable.v1.appTableRecord.search": true,
		"contact.v3.user.get":              true,
	}

	tests := []struct {
		name     string
		allowed  config.AllowedTables
		call     ToolCall
		wantErr  bool
		wantPath map[string]any
	}{
		{
			name:    "unknown tool",
			call:    ToolCall{Name: "drive.v1.file.delete", Arguments: `{}`},
			wantErr: true,
		},
		{
			name:    "arguments not an object",
			call:    ToolCall{Name: "contact.v3.user.get", Arguments: `[1,2]`},
			wantErr: true,
		},
		{
			name:    "foreign base",
			call:    ToolCall{Name: "bitable.v1.appTableRecord.search", Arguments: `{"path":{"app_token":"bascnOTHER"}}`},
			wantErr: true,
		},
		{
			name:     "missing app_token is pinned",
			call:     ToolCall{Name: "bitable.v1.appTableRecord.search", Arguments: `{"path":{"table_id":"tbl1"}}`},
			wantPath: map[string]any{"app_token": "bascnLOCK", "table_id": "tbl1"},
		},
		{
			name:     "no path at all is pinned",
			call:     ToolCall{Name: "bitable.v1.appTableRecord.search", Arguments: ``},
			wantPath: map[string]any{"app_token": "bascnLOCK"},
		},
		{
			name:    "table outside allowlist",
			allowed: config.NewAllowedTables("tbl1"),
			call:    ToolCall{Name: "bitable.v1.appTableRecord.search", Arguments: `{"path":{"app_token":"bascnLOCK","table_id":"tbl2"}}`},
			wantErr: true,
		},
		{
			name:     "table inside allowlist",
			allowed:  config.NewAllowedTables("tbl1"),
			call:     ToolCall{Name: "bitable.v1.appTableRecord.search", Arguments: `{"path":{"app_token":"bascnLOCK","table_id":"tbl1"}}`},
			wantPath: map[string]any{"app_token": "bascnLOCK", "table_id": "tbl1"},
		},
		{
			name:     "non-bitable tool untouched",
			call:     ToolCall{Name: "contact.v3.user.get", Arguments: `{"path":{"user_id":"ou_1"}}`},
			wantPath: map[string]any{"user_id": "ou_1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewToolGate(lock, tt.allowed)
			args, err := g.Check(tt.call, known)
			if tt.wantErr {
				if !errors.Is(err, ErrToolDenied) {
					t.Fatalf("expected ErrToolDenied, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			path, _ := args["path"].(map[string]any)
			if len(path) != len(tt.wantPath) {
				t.Fatalf("path = %v, want %v", path, tt.wantPath)
			}
			for k, v := range tt.wantPath {
				if path[k] != v {
					t.Errorf("path[%s] = %v, want %v", k, path[k], v)
				}
			}
		})
	}
}

func TestToolGate_UnlockedPassesAnyBase(t *testing.T) {
	g := NewToolGate(config.BaseLock{}, config.AllowedTables{})
	known := map[string]bool{"bitable.v1.app.get": true}

	args, err := g.Check(ToolCall{Name: "bitable.v1.app.get", Arguments: `{"path":{"app_token":"anything"}}`}, known)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args["path"].(map[string]any)["app_token"] != "anything" {
		t.Errorf("unexpected args: %v", args)
	}
}

// scriptedModel returns its replies in order and records what it was sent.
type scriptedModel struct {
	mu      sync.Mutex
	replies []*Reply
	err     error
	seen    [][]Message
	calls   atomic.Int32
}

func (m *scriptedModel) Invoke(ctx context.Context, messages []Message, tools []ToolSpec) (*Reply, error) {
	n := int(m.calls.Add(1)) - 1
	m.mu.Lock()
	m.seen = append(m.seen, append([]Message(nil), messages...))
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if n >= len(m.replies) {
		return m.replies[len(m.replies)-1], nil
	}
	return m.replies[n], nil
}

type fakeTools struct {
	specs   []ToolSpec
	listErr error
	calls   atomic.Int32
	mu      sync.Mutex
	args    []map[string]any
}

func (f *fakeTools) ListTools(ctx context.Context) ([]ToolSpec, error) {
	return f.specs, f.listErr
}

func (f *fakeTools) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.args = append(f.args, args)
	f.mu.Unlock()
	return `{"items":[{"fields":{"Name":"Write report"}}]}`, nil
}

func testConfig() *config.Config {
	tables, _ := config.NewTableMap(config.TableEntry{Name: "Tasks", ID: "tbl123"})
	return &config.Config{
		Lock:    config.BaseLock{Enabled: true, BaseID: "bascnLOCK"},
		Tables:  tables,
		Allowed: config.NewAllowedTables("tbl123"),
		LLM:     config.LLMConfig{MaxToolRounds: 3, Timeout: time.Second},
		MCP:     config.MCPConfig{Timeout: time.Second},
	}
}

func TestRun_ToolLoop(t *testing.T) {
	model := &scriptedModel{replies: []*Reply{
		{ToolCalls: []ToolCall{{
			ID:        "call_1",
			Name:      "bitable.v1.appTableRecord.search",
			Arguments: `{"path":{"table_id":"tbl123"}}`,
		}}},
		{Text: "พบงาน 1 รายการ: Write report ครับ"},
	}}
	tools := &fakeTools{specs: []ToolSpec{{Name: "bitable.v1.appTableRecord.search"}}}
	writer := &storage.MemoryWriter{}

	e := New(testConfig(), model, tools, nil, writer, zap.NewNop())
	res, err := e.Run(context.Background(), TaskRequest{
		Text:        "ดูงานทั้งหมดใน table: Tasks",
		SessionID:   "chat-1",
		DisplayName: "Anna",
		Source:      "api",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tools.calls.Load() != 1 {
		t.Errorf("expected 1 tool call, got %d", tools.calls.Load())
	}
	path := tools.args[0]["path"].(map[string]any)
	if path["app_token"] != "bascnLOCK" {
		t.Errorf("expected pinned base, got %v", path["app_token"])
	}
	if res.Turn.Table.ID != "tbl123" {
		t.Errorf("expected resolved tbl123, got %+v", res.Turn.Table)
	}
	if !strings.HasPrefix(res.Text, "สวัสดีคุณAnna") || !strings.Contains(res.Text, "Write report") {
		t.Errorf("unexpected text: %q", res.Text)
	}
	if res.RequestID == "" {
		t.Error("expected a generated request id")
	}

	// second invocation sees the tool result
	second := model.seen[1]
	last := second[len(second)-1]
	if last.Role != RoleTool || last.ToolCallID != "call_1" {
		t.Errorf("expected tool message for call_1, got %+v", last)
	}

	events := writer.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Status != "ok" || events[0].TableStatus != "allowed" || events[0].ToolCalls != 1 {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestRun_DeniedCallFedBack(t *testing.T) {
	model := &scriptedModel{replies: []*Reply{
		{ToolCalls: []ToolCall{{
			ID:        "call_x",
			Name:      "bitable.v1.appTableRecord.search",
			Arguments: `{"path":{"table_id":"tbl999"}}`,
		}}},
		{Text: "ขออภัยครับ ตารางนี้ไม่ได้รับอนุญาต กรุณาติดต่อผู้ดูแลระบบ"},
	}}
	tools := &fakeTools{specs: []ToolSpec{{Name: "bitable.v1.appTableRecord.search"}}}
	writer := &storage.MemoryWriter{}

	e := New(testConfig(), model, tools, nil, writer, zap.NewNop())
	res, err := e.Run(context.Background(), TaskRequest{Text: "search table tbl999", Source: "api"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tools.calls.Load() != 0 {
		t.Errorf("denied call must not reach the tool server")
	}
	if res.DeniedCalls != 1 {
		t.Errorf("expected 1 denied call, got %d", res.DeniedCalls)
	}
	fed := model.seen[1][len(model.seen[1])-1]
	if !strings.HasPrefix(fed.Content, "denied:") {
		t.Errorf("expected denial fed back to the model, got %q", fed.Content)
	}
	if writer.Events()[0].DeniedCalls != 1 {
		t.Errorf("expected denied call in audit event")
	}
}

func TestRun_RoundLimit(t *testing.T) {
	loop := &Reply{ToolCalls: []ToolCall{{ID: "call_l", Name: "contact.v3.user.get", Arguments: `{}`}}}
	model := &scriptedModel{replies: []*Reply{loop}}
	tools := &fakeTools{specs: []ToolSpec{{Name: "contact.v3.user.get"}}}

	e := New(testConfig(), model, tools, nil, &storage.MemoryWriter{}, zap.NewNop())
	res, err := e.Run(context.Background(), TaskRequest{Text: "who am i"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := model.calls.Load(); got != 3 {
		t.Errorf("expected 3 model rounds, got %d", got)
	}
	if res.Text != DefaultSanitizerConfig().Fallback {
		t.Errorf("expected fallback text, got %q", res.Text)
	}
}

func TestRun_ModelError(t *testing.T) {
	model := &scriptedModel{err: context.DeadlineExceeded}
	tools := &fakeTools{}
	writer := &storage.MemoryWriter{}

	e := New(testConfig(), model, tools, nil, writer, zap.NewNop())
	_, err := e.Run(context.Background(), TaskRequest{Text: "เพิ่มลูกค้าใหม่"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	ev := writer.Events()[0]
	if ev.Status != "timeout" || ev.Category != "customer" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestRun_ListToolsError(t *testing.T) {
	model := &scriptedModel{replies: []*Reply{{Text: "unused"}}}
	tools := &fakeTools{listErr: errors.New("connection refused")}

	e := New(testConfig(), model, tools, nil, &storage.MemoryWriter{}, zap.NewNop())
	if _, err := e.Run(context.Background(), TaskRequest{Text: "hi"}); err == nil {
		t.Fatal("expected error")
	}
	if model.calls.Load() != 0 {
		t.Error("model must not be invoked without tools")
	}
}

func TestRun_NoModel(t *testing.T) {
	e := New(testConfig(), nil, &fakeTools{}, nil, &storage.MemoryWriter{}, zap.NewNop())
	if _, err := e.Run(context.Background(), TaskRequest{Text: "hi"}); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestRun_ModelTimeoutApplied(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.Timeout = 20 * time.Millisecond

	blocking := modelFunc(func(ctx context.Context, _ []Message, _ []ToolSpec) (*Reply, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	e := New(cfg, blocking, &fakeTools{}, nil, &storage.MemoryWriter{}, zap.NewNop())
	start := time.Now()
	_, err := e.Run(context.Background(), TaskRequest{Text: "hi"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("model timeout not applied")
	}
}

func TestPrepare_SoftDeny(t *testing.T) {
	cfg := testConfig()
	cfg.Allowed = config.NewAllowedTables("tbl999")

	e := New(cfg, nil, nil, nil, &storage.MemoryWriter{}, zap.NewNop())
	turn := e.Prepare(TaskRequest{Text: "table: Tasks please update"})

	if turn.Assessment.Verdict != VerdictDeny {
		t.Errorf("expected deny, got %v", turn.Assessment.Verdict)
	}
	all := joinContent(e.SystemMessages(turn))
	if !strings.Contains(all, "not in the hard allowlist") {
		t.Errorf("expected refusal clause, got:\n%s", all)
	}
}

type modelFunc func(ctx context.Context, messages []Message, tools []ToolSpec) (*Reply, error)

func (f modelFunc) Invoke(ctx context.Context, messages []Message, tools []ToolSpec) (*Reply, error) {
	return f(ctx, messages, tools)
}
