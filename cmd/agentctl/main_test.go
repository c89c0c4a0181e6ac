package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func runCmd(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	a := &app{
		getenv: func(k string) string { return env[k] },
		logger: zap.NewNop(),
	}
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAnalyze(t *testing.T) {
	out, err := runCmd(t, nil, "analyze", "เพิ่มลูกค้าใหม่")
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	var got AnalysisOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.Category != "customer" || got.Action != "create" || got.ShouldAsk {
		t.Errorf("analysis = %+v", got)
	}
	if got.Table != nil {
		t.Error("analyze should not resolve tables")
	}
}

func TestResolve(t *testing.T) {
	env := map[string]string{
		"MCP_MODE":               "sse",
		"TABLE_MAP_JSON":         `{"Tasks":"tbl123","Leads":"tbl456"}`,
		"ALLOWED_TABLE_IDS_JSON": `["tbl123"]`,
	}

	tests := []struct {
		name       string
		text       string
		wantStatus string
		wantID     string
	}{
		{"allowed", "table: Tasks please update", "allowed", "tbl123"},
		{"soft denied", "table: Leads please update", "denied", ""},
		{"no match", "hello there", "none", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCmd(t, env, "resolve", tt.text)
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			var got AnalysisOutput
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, out)
			}
			if got.Table == nil || got.Table.Status != tt.wantStatus || got.Table.ID != tt.wantID {
				t.Errorf("table = %+v, want status %s id %q", got.Table, tt.wantStatus, tt.wantID)
			}
			if got.Verdict == "" {
				t.Error("expected a verdict")
			}
		})
	}
}

func TestResolve_MissingMCPURL(t *testing.T) {
	_, err := runCmd(t, map[string]string{"MCP_MODE": "base"}, "resolve", "anything")
	if err == nil {
		t.Fatal("expected config error for base mode without URL")
	}
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantLen int
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"object", `{"table_id":"tbl1","page_size":5}`, 2, false},
		{"array", `[1,2]`, 0, true},
		{"malformed", `{"table_id":`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestDispatch_BadParamsFailsBeforeConnecting(t *testing.T) {
	_, err := runCmd(t, map[string]string{"MCP_MODE": "sse"}, "dispatch", "list tables", "--params", "nope")
	if err == nil || !strings.Contains(err.Error(), "--params") {
		t.Fatalf("err = %v, want params error", err)
	}
}

func TestClients_RequirePostgres(t *testing.T) {
	for _, args := range [][]string{
		{"clients", "list"},
		{"clients", "create", "ops-bot"},
		{"clients", "revoke", "c_1"},
		{"migrate"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, err := runCmd(t, map[string]string{"MCP_MODE": "sse"}, args...)
			if !errors.Is(err, errNoPostgres) {
				t.Errorf("err = %v, want errNoPostgres", err)
			}
		})
	}
}
