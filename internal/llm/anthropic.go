package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	anthropicSDK "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/triage-ai/lark-agent/internal/engine"
)

type AnthropicConfig struct {
	APIKey    string
	APIURL    string
	Model     string
	MaxTokens int
}

// Anthropic invokes the Messages API with tool use.
type Anthropic struct {
	client    anthropicSDK.Client
	model     string
	maxTokens int64
	logger    *zap.Logger
}

func NewAnthropic(cfg AnthropicConfig, httpClient *http.Client, logger *zap.Logger) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(1),
	}
	if cfg.APIURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.APIURL, "/")))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Anthropic{
		client:    anthropicSDK.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

func (a *Anthropic) Invoke(ctx context.Context, messages []engine.Message, tools []engine.ToolSpec) (*engine.Reply, error) {
	system, converted := toAnthropicMessages(messages)

	params := anthropicSDK.MessageNewParams{
		Model:     anthropicSDK.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  converted,
	}
	if system != "" {
		params.System = []anthropicSDK.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("Invoke: %w", err)
	}

	reply := &engine.Reply{}
	var text []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			reply.ToolCalls = append(reply.ToolCalls, engine.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	reply.Text = strings.Join(text, "\n")

	a.logger.Debug("anthropic message",
		zap.String("model", a.model),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
		zap.Int("tool_calls", len(reply.ToolCalls)),
	)
	return reply, nil
}

// toAnthropicMessages folds system messages into one system prompt and
// groups consecutive turns of the same role. Tool results travel as user
// turns.
func toAnthropicMessages(messages []engine.Message) (string, []anthropicSDK.MessageParam) {
	var system []string
	out := make([]anthropicSDK.MessageParam, 0, len(messages))

	var blocks []anthropicSDK.ContentBlockParamUnion
	var role anthropicSDK.MessageParamRole

	flush := func() {
		if len(blocks) > 0 {
			out = append(out, anthropicSDK.MessageParam{Role: role, Content: blocks})
			blocks = nil
		}
	}
	switchTo := func(r anthropicSDK.MessageParamRole) {
		if role != r {
			flush()
			role = r
		}
	}

	for _, m := range messages {
		switch m.Role {
		case engine.RoleSystem:
			system = append(system, m.Content)
		case engine.RoleUser:
			switchTo(anthropicSDK.MessageParamRoleUser)
			if m.Content != "" {
				blocks = append(blocks, anthropicSDK.NewTextBlock(m.Content))
			}
		case engine.RoleTool:
			switchTo(anthropicSDK.MessageParamRoleUser)
			isError := strings.HasPrefix(m.Content, "error:") || strings.HasPrefix(m.Content, "denied:")
			blocks = append(blocks, anthropicSDK.NewToolResultBlock(m.ToolCallID, m.Content, isError))
		case engine.RoleAssistant:
			switchTo(anthropicSDK.MessageParamRoleAssistant)
			if m.Content != "" {
				blocks = append(blocks, anthropicSDK.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicSDK.NewToolUseBlock(tc.ID, rawArguments(tc.Arguments), tc.Name))
			}
		}
	}
	flush()

	return strings.Join(system, "\n\n"), out
}

func toAnthropicTools(tools []engine.ToolSpec) []anthropicSDK.ToolUnionParam {
	converted := make([]anthropicSDK.ToolUnionParam, len(tools))
	for i, tool := range tools {
		schema := functionParameters(tool.Schema)
		converted[i] = anthropicSDK.ToolUnionParam{
			OfTool: &anthropicSDK.ToolParam{
				Name:        tool.Name,
				Description: anthropicSDK.String(tool.Description),
				InputSchema: anthropicSDK.ToolInputSchemaParam{
					Properties: schema["properties"],
					Required:   requiredFields(schema),
				},
			},
		}
	}
	return converted
}

// requiredFields reads the schema's "required" list, which arrives as []any
// when the schema was decoded from JSON.
func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, v := range req {
			if name, ok := v.(string); ok {
				out = append(out, name)
			}
		}
		return out
	}
	return nil
}
