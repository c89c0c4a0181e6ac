package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"go.uber.org/zap"

	"github.com/triage-ai/lark-agent/internal/engine"
)

type OpenAIConfig struct {
	APIKey string
	APIURL string
	Model  string
}

// OpenAI invokes the Chat Completions API with function tools.
type OpenAI struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAI(cfg OpenAIConfig, httpClient *http.Client, logger *zap.Logger) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(1),
	}
	if cfg.APIURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.APIURL, "/")))
	}

	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger,
	}
}

func (o *OpenAI) Invoke(ctx context.Context, messages []engine.Message, tools []engine.ToolSpec) (*engine.Reply, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(o.model),
		Messages: toChatMessages(messages),
	}
	if len(tools) > 0 {
		params.Tools = toOpenAITools(tools)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("Invoke: %w", err)
	}
	if len(resp.Choices) == 0 {
		return &engine.Reply{}, nil
	}

	msg := resp.Choices[0].Message
	reply := &engine.Reply{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, engine.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	o.logger.Debug("openai completion",
		zap.String("model", o.model),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int("tool_calls", len(reply.ToolCalls)),
	)
	return reply, nil
}

func toOpenAITools(tools []engine.ToolSpec) []openai.ChatCompletionToolUnionParam {
	result := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		result = append(result, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  shared.FunctionParameters(functionParameters(tool.Schema)),
		}))
	}
	return result
}

func toChatMessages(messages []engine.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case engine.RoleSystem:
			result = append(result, openai.SystemMessage(m.Content))
		case engine.RoleUser:
			result = append(result, openai.UserMessage(m.Content))
		case engine.RoleTool:
			result = append(result, openai.ToolMessage(m.Content, m.ToolCallID))
		case engine.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				result = append(result, openai.AssistantMessage(m.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: string(rawArguments(tc.Arguments)),
						},
					},
				})
			}
			param := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if m.Content != "" {
				param.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(m.Content),
				}
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &param})
		}
	}
	return result
}
