package engine

import (
	"fmt"
	"strings"

	"github.com/triage-ai/lark-agent/internal/config"
)

// Turn is the deterministic analysis of one request, before any model call.
type Turn struct {
	Normalized  string
	Intent      IntentResult
	Table       ResolvedTable
	Assessment  Assessment
	SessionID   string
	DisplayName string
}

// Composer renders the system instructions placed ahead of user content.
// It is purely textual and never calls a remote capability.
type Composer struct {
	lock    config.BaseLock
	tables  config.TableMap
	allowed config.AllowedTables
}

// NewComposer creates a Composer from the immutable configuration.
func NewComposer(lock config.BaseLock, tables config.TableMap, allowed config.AllowedTables) *Composer {
	return &Composer{lock: lock, tables: tables, allowed: allowed}
}

// Compose returns the system messages for a turn: the base policy first,
// then one message per turn-specific directive.
func (c *Composer) Compose(turn Turn) []Message {
	msgs := []Message{{Role: RoleSystem, Content: c.BasePolicy() + "\n\n" + c.TablePolicy()}}

	add := func(format string, args ...any) {
		msgs = append(msgs, Message{Role: RoleSystem, Content: fmt.Sprintf(format, args...)})
	}

	switch turn.Table.Status {
	case ResolutionAllowed:
		add("Use table_id=%s (name='%s') for Bitable-related actions.", turn.Table.ID, turn.Table.Name)
	case ResolutionDenied:
		add("The table '%s' is not in the hard allowlist. Do not call any tool for it. "+
			"Refuse politely and tell the user to ask an administrator for access.", turn.Table.Name)
	}

	if turn.Assessment.Verdict == VerdictAsk && !turn.Table.Matched() {
		add("The request is ambiguous. Before calling any tool, ask the user which table and which action they mean.")
	}

	if turn.Intent.Category != CategoryNone {
		add("The request most likely concerns %s data (action: %s).", turn.Intent.Category, turn.Intent.Action)
	}

	if turn.SessionID != "" {
		if turn.DisplayName != "" {
			add("Session token: %s. The user's display name is %s; greet them by name.", turn.SessionID, turn.DisplayName)
		} else {
			add("Session token: %s. If you need the user's display name, look it up with the contact user lookup tool "+
				"using this token as the user id, and greet them by name.", turn.SessionID)
		}
	}

	return msgs
}

// BasePolicy is the base-lock clause.
func (c *Composer) BasePolicy() string {
	if c.lock.Enabled && c.lock.BaseID != "" {
		return fmt.Sprintf("Use ONLY the Lark MCP base with base_id: %s. Do NOT reference other bases.", c.lock.BaseID)
	}
	return "Use only the provided MCP tools."
}

// TablePolicy renders the table map, the allowlist and the refusal rule.
func (c *Composer) TablePolicy() string {
	var b strings.Builder
	b.WriteString("When the user mentions a table by name, map it to the given table_id and pass that ID in tool arguments.\n")
	b.WriteString("Allowed tables (name -> id):\n")
	if c.tables.Len() == 0 {
		b.WriteString("(none configured)\n")
	}
	for _, e := range c.tables.Entries() {
		fmt.Fprintf(&b, "- %s -> %s\n", e.Name, e.ID)
	}
	if !c.allowed.Empty() {
		fmt.Fprintf(&b, "Hard allowlist of table_ids: %s\n", strings.Join(c.allowed.IDs(), ", "))
	}
	b.WriteString("If the name is ambiguous or missing, ask the user to pick a table.\n")
	b.WriteString("If a mapped table_id is not in the hard allowlist, refuse and ask admin.")
	return b.String()
}
