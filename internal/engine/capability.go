package engine

import "context"

// ModelInvoker is the language-model capability. Implementations must respect
// ctx deadlines. The reply content is untrusted.
type ModelInvoker interface {
	Invoke(ctx context.Context, messages []Message, tools []ToolSpec) (*Reply, error)
}

// ToolCaller is the remote tool capability used by the model loop.
type ToolCaller interface {
	// ListTools discovers the remote operations currently offered.
	ListTools(ctx context.Context) ([]ToolSpec, error)

	// CallTool invokes a remote operation and returns its textual result.
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}
