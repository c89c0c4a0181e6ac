package engine

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/triage-ai/lark-agent/internal/config"
)

func TestExtractFinal(t *testing.T) {
	tests := []struct {
		name     string
		messages []Message
		want     string
	}{
		{
			name:     "no messages",
			messages: nil,
			want:     "",
		},
		{
			name: "newest clean assistant wins",
			messages: []Message{
				{Role: RoleUser, Content: "list tasks"},
				{Role: RoleAssistant, Content: "older answer"},
				{Role: RoleTool, Content: "raw tool output"},
				{Role: RoleAssistant, Content: "มีงานทั้งหมด 3 รายการครับ"},
			},
			want: "มีงานทั้งหมด 3 รายการครับ",
		},
		{
			name: "skips reasoning and leakage",
			messages: []Message{
				{Role: RoleAssistant, Content: "พบ 2 รายการครับ"},
				{Role: RoleAssistant, Content: "Let me look up the records"},
				{Role: RoleAssistant, Content: "calling tool call_abc123 now"},
			},
			want: "พบ 2 รายการครับ",
		},
		{
			name: "all internal",
			messages: []Message{
				{Role: RoleAssistant, Content: "I'll check that"},
				{Role: RoleAssistant, Content: "Based on the app_token"},
			},
			want: "",
		},
		{
			name: "ignores user text",
			messages: []Message{
				{Role: RoleUser, Content: "hello there"},
			},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractFinal(tt.messages); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFilter_DropsDenylistedLines(t *testing.T) {
	s := NewSanitizer(DefaultSanitizerConfig())
	in := strings.Join([]string{
		"ข้อมูลลูกค้าล่าสุดมีดังนี้",
		"Use ONLY the Lark MCP base with base_id: bas1",
		"system: internal",
		"- บริษัท A",
		"...",
		"Use table_id=tbl1 (name='x') for Bitable-related actions.",
		"- บริษัท B",
	}, "\n")

	got := s.Filter(in)
	want := "ข้อมูลลูกค้าล่าสุดมีดังนี้\n- บริษัท A\n- บริษัท B"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	for _, bad := range []string{"base_id", "system:", "table_id="} {
		if strings.Contains(got, bad) {
			t.Errorf("output still contains %q", bad)
		}
	}
}

func TestFilter_Fallback(t *testing.T) {
	cfg := DefaultSanitizerConfig()
	s := NewSanitizer(cfg)

	for _, in := range []string{
		"",
		"   \n\n",
		"app_token: abc\nsession token: 123",
		"ok",
		"null\n-\n...",
	} {
		got := s.Filter(in)
		if got != cfg.Fallback {
			t.Errorf("Filter(%q) = %q, want fallback", in, got)
		}
		if utf8.RuneCountInString(got) < cfg.MinLength {
			t.Errorf("fallback shorter than MinLength")
		}
	}
}

func TestPersonalize(t *testing.T) {
	s := NewSanitizer(DefaultSanitizerConfig())

	got := s.Personalize("บันทึกข้อมูลเรียบร้อย", "Anna")
	want := "สวัสดีคุณAnna 👋\n\nบันทึกข้อมูลเรียบร้อยแล้ว ครับ"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPersonalize_NoNameNoGreeting(t *testing.T) {
	s := NewSanitizer(DefaultSanitizerConfig())
	got := s.Personalize("พบ 3 รายการค่ะ", "")
	if got != "พบ 3 รายการค่ะ" {
		t.Errorf("expected text unchanged, got %q", got)
	}
}

func TestPersonalize_Idempotent(t *testing.T) {
	s := NewSanitizer(DefaultSanitizerConfig())

	for _, in := range []string{"Done", "เรียบร้อย", "สวัสดีคุณAnna ครับ", ""} {
		once := s.Personalize(in, "Anna")
		twice := s.Personalize(once, "Anna")
		if once != twice {
			t.Errorf("Personalize not idempotent for %q: %q -> %q", in, once, twice)
		}
		if strings.Count(twice, "Anna") != 1 {
			t.Errorf("expected exactly one greeting, got %q", twice)
		}
		if strings.Count(twice, "ครับ") > 1 {
			t.Errorf("politeness marker doubled: %q", twice)
		}
	}
}

func TestSanitize_EndToEnd(t *testing.T) {
	s := NewSanitizer(DefaultSanitizerConfig())
	messages := []Message{
		{Role: RoleAssistant, Content: "อัปเดตสถานะงานเรียบร้อย\nclient_token: update_record_1"},
		{Role: RoleAssistant, Content: "Let me verify"},
	}
	got := s.Sanitize(messages, "Somchai")
	want := "สวัสดีคุณSomchai 👋\n\nอัปเดตสถานะงานเรียบร้อยแล้ว ครับ"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCompose_AllowedTable(t *testing.T) {
	tables, _ := config.NewTableMap(config.TableEntry{Name: "Tasks", ID: "tbl123"})
	c := NewComposer(config.BaseLock{Enabled: true, BaseID: "bascn1"}, tables, config.NewAllowedTables("tbl123"))

	msgs := c.Compose(Turn{
		Table:      ResolvedTable{Name: "Tasks", ID: "tbl123", Status: ResolutionAllowed},
		Intent:     IntentResult{Category: CategoryTask, Action: ActionUpdate, Confidence: 4},
		Assessment: Assessment{Verdict: VerdictProceed},
		SessionID:  "oc_42",
	})

	all := joinContent(msgs)
	for _, want := range []string{
		"base_id: bascn1",
		"- Tasks -> tbl123",
		"Hard allowlist of table_ids: tbl123",
		"refuse and ask admin",
		"Use table_id=tbl123 (name='Tasks')",
		"task data (action: update)",
		"Session token: oc_42",
	} {
		if !strings.Contains(all, want) {
			t.Errorf("composed instructions missing %q", want)
		}
	}
	for _, m := range msgs {
		if m.Role != RoleSystem {
			t.Errorf("expected system role, got %s", m.Role)
		}
	}
}

func TestCompose_SoftDeniedEmitsRefusal(t *testing.T) {
	tables, _ := config.NewTableMap(config.TableEntry{Name: "Tasks", ID: "tbl123"})
	c := NewComposer(config.BaseLock{}, tables, config.NewAllowedTables("tbl999"))

	table := ResolvedTable{Name: "Tasks", Status: ResolutionDenied}
	msgs := c.Compose(Turn{Table: table, Assessment: Assess(IntentResult{}, table)})

	all := joinContent(msgs)
	if !strings.Contains(all, "'Tasks' is not in the hard allowlist") {
		t.Errorf("missing refusal clause:\n%s", all)
	}
	if !strings.Contains(all, "ask an administrator") {
		t.Errorf("missing admin direction:\n%s", all)
	}
	if strings.Contains(all, "Use table_id=") {
		t.Error("denied table must not be pinned")
	}
	if !strings.Contains(all, "Use only the provided MCP tools.") {
		t.Error("expected generic tool clause without a base lock")
	}
}

func TestCompose_AskWhenAmbiguous(t *testing.T) {
	c := NewComposer(config.BaseLock{}, config.TableMap{}, config.AllowedTables{})
	intent := IntentResult{ShouldAsk: true}
	msgs := c.Compose(Turn{Intent: intent, Assessment: Assess(intent, ResolvedTable{})})

	all := joinContent(msgs)
	if !strings.Contains(all, "ask the user which table") {
		t.Errorf("missing ask clause:\n%s", all)
	}
	if !strings.Contains(all, "(none configured)") {
		t.Errorf("expected empty table map marker:\n%s", all)
	}
}

func TestCompose_DisplayNameLookup(t *testing.T) {
	c := NewComposer(config.BaseLock{}, config.TableMap{}, config.AllowedTables{})

	withName := joinContent(c.Compose(Turn{SessionID: "s1", DisplayName: "Anna"}))
	if !strings.Contains(withName, "display name is Anna") {
		t.Errorf("expected display name clause:\n%s", withName)
	}

	lookup := joinContent(c.Compose(Turn{SessionID: "s1"}))
	if !strings.Contains(lookup, "look it up with the contact user lookup tool") {
		t.Errorf("expected lookup instruction:\n%s", lookup)
	}
}

func joinContent(msgs []Message) string {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n")
}
