// Package llm adapts hosted language-model APIs to engine.ModelInvoker.
package llm

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/triage-ai/lark-agent/internal/config"
	"github.com/triage-ai/lark-agent/internal/engine"
)

const defaultMaxTokens = 4096

// New returns the invoker selected by cfg.Provider.
func New(cfg config.LLMConfig, httpClient *http.Client, logger *zap.Logger) (engine.ModelInvoker, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey: cfg.OpenAIKey,
			APIURL: cfg.OpenAIBaseURL,
			Model:  cfg.OpenAIModel,
		}, httpClient, logger), nil
	case "anthropic":
		return NewAnthropic(AnthropicConfig{
			APIKey: cfg.AnthropicKey,
			Model:  cfg.AnthropicModel,
		}, httpClient, logger), nil
	default:
		return nil, fmt.Errorf("New: %w: %s", config.ErrUnknownLLMProvider, cfg.Provider)
	}
}

// functionParameters returns schema with the fields both providers require.
func functionParameters(schema map[string]any) map[string]any {
	out := make(map[string]any, len(schema)+2)
	for k, v := range schema {
		out[k] = v
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	return out
}

// rawArguments returns args as a JSON object, substituting {} for anything
// that is not one.
func rawArguments(args string) json.RawMessage {
	var probe map[string]any
	if args == "" || json.Unmarshal([]byte(args), &probe) != nil {
		return json.RawMessage("{}")
	}
	return json.RawMessage(args)
}
