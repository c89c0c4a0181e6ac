package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/triage-ai/lark-agent/internal/config"
)

// ErrToolDenied is returned when a model-issued tool call fails the gate.
var ErrToolDenied = errors.New("tool call denied")

// ToolGate enforces the base lock and the table allowlist on every tool call
// the model issues, regardless of what the model decided.
type ToolGate struct {
	lock    config.BaseLock
	allowed config.AllowedTables
}

// NewToolGate creates a ToolGate.
func NewToolGate(lock config.BaseLock, allowed config.AllowedTables) *ToolGate {
	return &ToolGate{lock: lock, allowed: allowed}
}

// Check validates call against the discovered tool set and returns the
// arguments to send. A bitable call without app_token gets the pinned base id.
func (g *ToolGate) Check(call ToolCall, known map[string]bool) (map[string]any, error) {
	if !known[call.Name] {
		return nil, fmt.Errorf("%w: unknown tool %q", ErrToolDenied, call.Name)
	}

	args := map[string]any{}
	if raw := strings.TrimSpace(call.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, fmt.Errorf("%w: arguments are not a JSON object", ErrToolDenied)
		}
		if args == nil {
			args = map[string]any{}
		}
	}

	path, _ := args["path"].(map[string]any)

	if g.lock.Enabled && g.lock.BaseID != "" {
		token, present := path["app_token"]
		switch {
		case present && token != g.lock.BaseID:
			return nil, fmt.Errorf("%w: app_token %v is outside the locked base", ErrToolDenied, token)
		case !present && isBitable(call.Name):
			if path == nil {
				path = map[string]any{}
				args["path"] = path
			}
			path["app_token"] = g.lock.BaseID
		}
	}

	if tid, ok := path["table_id"]; ok && !g.allowed.Empty() {
		id, _ := tid.(string)
		if !g.allowed.Allows(id) {
			return nil, fmt.Errorf("%w: table_id %v is not in the allowlist", ErrToolDenied, tid)
		}
	}

	return args, nil
}

func isBitable(tool string) bool {
	return strings.Contains(strings.ToLower(tool), "bitable")
}
