package engine

// Category is the resource category a request most likely targets.
type Category int

const (
	CategoryNone Category = iota
	CategoryCustomer
	CategoryTask
	CategorySales
	CategoryEmployee
	CategoryInventory
)

// String returns the lowercase category name.
func (c Category) String() string {
	switch c {
	case CategoryCustomer:
		return "customer"
	case CategoryTask:
		return "task"
	case CategorySales:
		return "sales"
	case CategoryEmployee:
		return "employee"
	case CategoryInventory:
		return "inventory"
	default:
		return "none"
	}
}

// Action is the CRUD action a request most likely asks for.
type Action int

const (
	ActionNone Action = iota
	ActionCreate
	ActionRead
	ActionUpdate
	ActionDelete
)

// String returns the lowercase action name.
func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionRead:
		return "read"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "none"
	}
}

// IntentResult is the outcome of intent analysis for one request.
type IntentResult struct {
	Category   Category
	Action     Action
	Confidence int
	ShouldAsk  bool // Confidence < 2
}

// Resolution distinguishes the three table resolution outcomes.
type Resolution int

const (
	ResolutionNone    Resolution = iota // no table matched
	ResolutionAllowed                   // matched and passes the allowlist
	ResolutionDenied                    // matched by name, id rejected by the allowlist
)

// String returns the lowercase resolution name.
func (r Resolution) String() string {
	switch r {
	case ResolutionAllowed:
		return "allowed"
	case ResolutionDenied:
		return "denied"
	default:
		return "none"
	}
}

// ResolvedTable is the result of table resolution.
// Name is set for Allowed and Denied; ID only for Allowed.
type ResolvedTable struct {
	Name   string
	ID     string
	Status Resolution
}

// Matched reports whether a table name was recognized.
func (t ResolvedTable) Matched() bool { return t.Status != ResolutionNone }

// SoftDenied reports whether the name matched but the id failed the allowlist gate.
func (t ResolvedTable) SoftDenied() bool { return t.Status == ResolutionDenied }

// Verdict is the gating decision for one turn.
type Verdict int

const (
	VerdictProceed Verdict = iota + 1
	VerdictAsk
	VerdictDeny
)

// String returns the lowercase verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictProceed:
		return "proceed"
	case VerdictAsk:
		return "ask"
	case VerdictDeny:
		return "deny"
	default:
		return "unspecified"
	}
}

// Role tags a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON object
}

// Message is one entry of the conversation for a single task.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // assistant messages only
	ToolCallID string     // tool messages only
	Name       string     // tool name on tool messages
}

// ToolSpec describes a remote tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Reply is the model's answer to one invocation.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
}
